package onnx

import (
	"image"
	"image/color"
	"math"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
)

// padGray is the letterbox fill used by the YOLO training pipelines.
var padGray = color.NRGBA{R: 114, G: 114, B: 114, A: 255}

// letterbox records how source pixels map into the square model input.
type letterbox struct {
	scale      float64
	padX, padY float64
	srcW, srcH int
}

// toSource maps a model-space coordinate pair back to clamped source pixels.
func (l letterbox) toSource(x, y float64) (int, int) {
	sx := (x - l.padX) / l.scale
	sy := (y - l.padY) / l.scale
	return clampInt(int(math.Round(sx)), 0, l.srcW), clampInt(int(math.Round(sy)), 0, l.srcH)
}

// preprocess resizes img preserving aspect ratio into a size×size gray canvas
// and returns the CHW float32 tensor data normalized to [0,1].
func preprocess(img image.Image, size int) ([]float32, letterbox) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	scale := math.Min(float64(size)/float64(w), float64(size)/float64(h))
	newW := max(1, int(math.Round(float64(w)*scale)))
	newH := max(1, int(math.Round(float64(h)*scale)))

	resized := resize.Resize(uint(newW), uint(newH), img, resize.Bilinear)

	canvas := image.NewNRGBA(image.Rect(0, 0, size, size))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: padGray}, image.Point{}, draw.Src)
	padX := (size - newW) / 2
	padY := (size - newH) / 2
	draw.Draw(canvas, image.Rect(padX, padY, padX+newW, padY+newH), resized, resized.Bounds().Min, draw.Src)

	plane := size * size
	data := make([]float32, 3*plane)
	for y := range size {
		row := canvas.Pix[y*canvas.Stride:]
		for x := range size {
			px := row[x*4:]
			i := y*size + x
			data[i] = float32(px[0]) / 255
			data[plane+i] = float32(px[1]) / 255
			data[2*plane+i] = float32(px[2]) / 255
		}
	}

	return data, letterbox{
		scale: scale,
		padX:  float64(padX),
		padY:  float64(padY),
		srcW:  w,
		srcH:  h,
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

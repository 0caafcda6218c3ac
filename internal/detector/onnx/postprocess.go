package onnx

import (
	"fmt"
	"sort"
)

// Layout is the output tensor arrangement of a YOLO export.
type Layout string

const (
	// LayoutV5 is [1, N, 5+C]: cx, cy, w, h, objectness, class scores.
	LayoutV5 Layout = "yolov5"
	// LayoutV8 is [1, 4+C, N]: cx, cy, w, h, class scores, attribute-major.
	LayoutV8 Layout = "yolov8"
)

// anchorCount is the number of predictions for a square input at strides 8/16/32.
func anchorCount(layout Layout, size int) int {
	n := 0
	for _, stride := range []int{8, 16, 32} {
		g := size / stride
		n += g * g
	}
	if layout == LayoutV5 {
		n *= 3
	}
	return n
}

// outputShape returns the expected output tensor shape.
func outputShape(layout Layout, size, classes int) ([]int64, error) {
	n := int64(anchorCount(layout, size))
	switch layout {
	case LayoutV5:
		return []int64{1, n, int64(5 + classes)}, nil
	case LayoutV8:
		return []int64{1, int64(4 + classes), n}, nil
	default:
		return nil, fmt.Errorf("unknown layout %q", layout)
	}
}

// candidate is one prediction in model input coordinates.
type candidate struct {
	x1, y1, x2, y2 float64
	score          float64
	class          int
}

func (c candidate) area() float64 {
	return max(0, c.x2-c.x1) * max(0, c.y2-c.y1)
}

// decode extracts candidates above threshold from a raw output tensor.
func decode(out []float32, layout Layout, n, classes int, threshold float64) []candidate {
	var cands []candidate
	for i := range n {
		var cx, cy, w, h, best float64
		bestClass := -1

		switch layout {
		case LayoutV5:
			row := out[i*(5+classes) : (i+1)*(5+classes)]
			obj := float64(row[4])
			if obj < threshold {
				continue
			}
			for c := range classes {
				if s := obj * float64(row[5+c]); s > best {
					best, bestClass = s, c
				}
			}
			cx, cy, w, h = float64(row[0]), float64(row[1]), float64(row[2]), float64(row[3])
		case LayoutV8:
			for c := range classes {
				if s := float64(out[(4+c)*n+i]); s > best {
					best, bestClass = s, c
				}
			}
			cx, cy, w, h = float64(out[i]), float64(out[n+i]), float64(out[2*n+i]), float64(out[3*n+i])
		}

		if bestClass < 0 || best < threshold {
			continue
		}
		cands = append(cands, candidate{
			x1:    cx - w/2,
			y1:    cy - h/2,
			x2:    cx + w/2,
			y2:    cy + h/2,
			score: best,
			class: bestClass,
		})
	}
	return cands
}

func iou(a, b candidate) float64 {
	ix1, iy1 := max(a.x1, b.x1), max(a.y1, b.y1)
	ix2, iy2 := min(a.x2, b.x2), min(a.y2, b.y2)
	inter := max(0, ix2-ix1) * max(0, iy2-iy1)
	union := a.area() + b.area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// nms runs class-wise non-maximum suppression and returns at most limit
// candidates ordered by descending score.
func nms(cands []candidate, threshold float64, limit int) []candidate {
	sorted := make([]candidate, len(cands))
	copy(sorted, cands)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].score > sorted[j].score })

	kept := make([]candidate, 0, len(sorted))
	for _, c := range sorted {
		suppressed := false
		for _, k := range kept {
			if k.class == c.class && iou(k, c) > threshold {
				suppressed = true
				break
			}
		}
		if suppressed {
			continue
		}
		kept = append(kept, c)
		if limit > 0 && len(kept) == limit {
			break
		}
	}
	return kept
}

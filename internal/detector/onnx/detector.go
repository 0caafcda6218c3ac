// Package onnx runs YOLO object detection in-process through ONNX Runtime.
package onnx

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // decoder registration
	_ "image/png"  // decoder registration
	"os"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/kailas-cloud/lensmatch/internal/domain"
	"github.com/kailas-cloud/lensmatch/internal/logger"
)

// Compile-time check: Detector implements domain.Detector.
var _ domain.Detector = (*Detector)(nil)

// Config holds the model settings.
type Config struct {
	ModelPath         string
	SharedLibraryPath string // empty = onnxruntime default lookup
	Layout            Layout
	InputSize         int
	InputName         string
	OutputName        string
	ConfThreshold     float64
	IoUThreshold      float64
	MaxDetections     int
	Labels            []string // defaults to COCOLabels
	Logger            *zap.Logger
}

// Detector owns one ONNX session with preallocated tensors.
// Runs are serialized: the tensors are shared.
type Detector struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]

	cfg     Config
	anchors int
	logger  *zap.Logger
}

// New loads the model and allocates the session.
func New(cfg Config) (*Detector, error) {
	if len(cfg.Labels) == 0 {
		cfg.Labels = COCOLabels
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model %s: %w", cfg.ModelPath, err)
	}

	outShape, err := outputShape(cfg.Layout, cfg.InputSize, len(cfg.Labels))
	if err != nil {
		return nil, err
	}

	if cfg.SharedLibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.SharedLibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	size := int64(cfg.InputSize)
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, size, size))
	if err != nil {
		_ = ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(outShape...))
	if err != nil {
		_ = input.Destroy()
		_ = ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{cfg.InputName}, []string{cfg.OutputName},
		[]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{output},
		nil)
	if err != nil {
		_ = input.Destroy()
		_ = output.Destroy()
		_ = ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	cfg.Logger.Info("Detector loaded",
		zap.String("model", filepath.Base(cfg.ModelPath)),
		zap.String("layout", string(cfg.Layout)),
		zap.Int("input_size", cfg.InputSize),
		zap.Int("classes", len(cfg.Labels)),
	)

	return &Detector{
		session: session,
		input:   input,
		output:  output,
		cfg:     cfg,
		anchors: anchorCount(cfg.Layout, cfg.InputSize),
		logger:  cfg.Logger,
	}, nil
}

// Detect implements domain.Detector.
func (d *Detector) Detect(ctx context.Context, imagePath string) ([]domain.DetectedRegion, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrDetection, err)
	}

	img, err := decodeFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrDetection, err)
	}

	data, lb := preprocess(img, d.cfg.InputSize)

	raw, err := d.run(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrDetection, err)
	}

	cands := decode(raw, d.cfg.Layout, d.anchors, len(d.cfg.Labels), d.cfg.ConfThreshold)
	kept := nms(cands, d.cfg.IoUThreshold, d.cfg.MaxDetections)

	regions := toRegions(kept, lb, d.cfg.Labels)
	logger.FromContext(ctx).Debug("detection finished",
		zap.Int("candidates", len(cands)),
		zap.Int("regions", len(regions)),
	)
	return regions, nil
}

func (d *Detector) run(data []float32) ([]float32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	copy(d.input.GetData(), data)
	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	out := d.output.GetData()
	raw := make([]float32, len(out))
	copy(raw, out)
	return raw, nil
}

// Close releases the session, tensors and environment.
func (d *Detector) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.input != nil {
		_ = d.input.Destroy()
	}
	if d.output != nil {
		_ = d.output.Destroy()
	}
	if d.session != nil {
		_ = d.session.Destroy()
	}
	_ = ort.DestroyEnvironment()
}

func toRegions(kept []candidate, lb letterbox, labels []string) []domain.DetectedRegion {
	regions := make([]domain.DetectedRegion, 0, len(kept))
	for _, c := range kept {
		x1, y1 := lb.toSource(c.x1, c.y1)
		x2, y2 := lb.toSource(c.x2, c.y2)
		r := domain.DetectedRegion{
			Box:        domain.BoundingBox{X1: x1, Y1: y1, X2: x2, Y2: y2},
			Confidence: c.score,
			ClassID:    c.class,
		}
		if c.class < len(labels) {
			r.Label = labels[c.class]
		}
		regions = append(regions, r)
	}
	return regions
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer func() { _ = f.Close() }()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

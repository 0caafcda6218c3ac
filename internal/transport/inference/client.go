// Package inference is a domain.Detector backed by a remote YOLO inference service.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/lensmatch/internal/domain"
	"github.com/kailas-cloud/lensmatch/internal/transport/retry"
)

const maxResponseBytes = 4 << 20

// Compile-time checks.
var (
	_ domain.Detector      = (*Client)(nil)
	_ domain.HealthChecker = (*Client)(nil)
)

// Config holds the inference service settings.
type Config struct {
	URL        string // base URL; detections are POSTed to <URL>/detect
	Retry      retry.Policy
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client posts images to the inference service.
type Client struct {
	baseURL string
	retry   retry.Policy
	http    *http.Client
	logger  *zap.Logger
}

// New creates a remote detector.
func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		retry:   cfg.Retry,
		http:    cfg.HTTPClient,
		logger:  cfg.Logger,
	}
}

type detectResponse struct {
	Detections []detection `json:"detections"`
}

type detection struct {
	BBox       []float64 `json:"bbox"`
	Confidence float64   `json:"confidence"`
	Class      int       `json:"class"`
	Label      string    `json:"label"`
}

// Detect implements domain.Detector.
func (c *Client) Detect(ctx context.Context, imagePath string) ([]domain.DetectedRegion, error) {
	content, err := os.ReadFile(filepath.Clean(imagePath))
	if err != nil {
		return nil, fmt.Errorf("%w: read image: %w", domain.ErrDetection, err)
	}

	var regions []domain.DetectedRegion
	err = c.retry.Do(ctx, func(ctx context.Context) error {
		var attemptErr error
		regions, attemptErr = c.attempt(ctx, filepath.Base(imagePath), content)
		return attemptErr
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrDetection, err)
	}
	return regions, nil
}

func (c *Client) attempt(ctx context.Context, filename string, content []byte) ([]domain.DetectedRegion, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("image", filename)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("create form file: %w", err))
	}
	if _, err := part.Write(content); err != nil {
		return nil, retry.Permanent(fmt.Errorf("write form file: %w", err))
	}
	if err := w.Close(); err != nil {
		return nil, retry.Permanent(fmt.Errorf("close multipart: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/detect", &buf)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := fmt.Errorf("inference service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		if retry.TransientStatus(resp.StatusCode) {
			return nil, statusErr
		}
		return nil, retry.Permanent(statusErr)
	}

	var parsed detectResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, retry.Permanent(fmt.Errorf("%w: %w", domain.ErrMalformedResponse, err))
	}

	regions := make([]domain.DetectedRegion, 0, len(parsed.Detections))
	for i, d := range parsed.Detections {
		if len(d.BBox) != 4 {
			return nil, retry.Permanent(fmt.Errorf("%w: detection %d has %d bbox values",
				domain.ErrMalformedResponse, i, len(d.BBox)))
		}
		regions = append(regions, domain.DetectedRegion{
			Box: domain.BoundingBox{
				X1: int(d.BBox[0]),
				Y1: int(d.BBox[1]),
				X2: int(d.BBox[2]),
				Y2: int(d.BBox[3]),
			},
			Confidence: d.Confidence,
			ClassID:    d.Class,
			Label:      d.Label,
		})
	}
	return regions, nil
}

// HealthCheck implements domain.HealthChecker via GET <URL>/health.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", http.NoBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("inference health: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference health: status %d", resp.StatusCode)
	}
	return nil
}

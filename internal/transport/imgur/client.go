// Package imgur uploads crops to an Imgur-compatible image host.
package imgur

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/kailas-cloud/lensmatch/internal/domain"
	"github.com/kailas-cloud/lensmatch/internal/logger"
	"github.com/kailas-cloud/lensmatch/internal/transport/retry"
)

// DefaultEndpoint is the public Imgur upload API.
const DefaultEndpoint = "https://api.imgur.com/3/image"

const unknownError = "Unknown error"

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 1 << 20

// Compile-time check: Client implements domain.ImageHost.
var _ domain.ImageHost = (*Client)(nil)

// Config holds the image host client settings.
type Config struct {
	Endpoint   string
	Retry      retry.Policy
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client uploads images with a per-call Client-ID credential.
type Client struct {
	endpoint string
	retry    retry.Policy
	http     *http.Client
	logger   *zap.Logger
}

// New creates an image host client.
func New(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Client{
		endpoint: cfg.Endpoint,
		retry:    cfg.Retry,
		http:     cfg.HTTPClient,
		logger:   cfg.Logger,
	}
}

type uploadResponse struct {
	Data    uploadData `json:"data"`
	Success bool       `json:"success"`
	Status  int        `json:"status"`
}

type uploadData struct {
	Link  string          `json:"link"`
	Error json.RawMessage `json:"error"`
}

// Upload implements domain.ImageHost.
func (c *Client) Upload(ctx context.Context, localPath, credential string) (string, error) {
	content, err := os.ReadFile(filepath.Clean(localPath))
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %w", domain.ErrUpload, filepath.Base(localPath), err)
	}

	var link string
	err = c.retry.Do(ctx, func(ctx context.Context) error {
		var attemptErr error
		link, attemptErr = c.attempt(ctx, filepath.Base(localPath), content, credential)
		return attemptErr
	})
	if err != nil {
		var upErr *domain.UploadError
		if !errors.As(err, &upErr) {
			err = fmt.Errorf("%w: %w", domain.ErrUpload, err)
		}
		logger.FromContext(ctx).Debug("upload failed", zap.String("file", filepath.Base(localPath)), zap.Error(err))
		return "", err
	}
	return link, nil
}

func (c *Client) attempt(ctx context.Context, filename string, content []byte, credential string) (string, error) {
	body, contentType, err := multipartBody(filename, content)
	if err != nil {
		return "", retry.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Authorization", "Client-ID "+credential)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	link, upErr := parseUpload(resp.StatusCode, raw)
	if upErr == nil {
		return link, nil
	}
	if retry.TransientStatus(resp.StatusCode) {
		return "", upErr
	}
	return "", retry.Permanent(upErr)
}

func multipartBody(filename string, content []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("image", filename)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, "", fmt.Errorf("write form file: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// parseUpload returns the hosted link or an *domain.UploadError.
func parseUpload(status int, raw []byte) (string, *domain.UploadError) {
	var resp uploadResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", &domain.UploadError{Status: status, Message: unknownError}
	}
	if status == http.StatusOK && resp.Success && resp.Data.Link != "" {
		return resp.Data.Link, nil
	}
	return "", &domain.UploadError{Status: status, Message: errorMessage(resp.Data.Error)}
}

// errorMessage reads data.error, which is either a string or {"message": ...}.
func errorMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return unknownError
	}
	var s string
	if json.Unmarshal(raw, &s) == nil && s != "" {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &obj) == nil && obj.Message != "" {
		return obj.Message
	}
	return unknownError
}

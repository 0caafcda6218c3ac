package imgur

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/lensmatch/internal/domain"
	"github.com/kailas-cloud/lensmatch/internal/metrics"
	"github.com/kailas-cloud/lensmatch/internal/transport/retry"
)

func TestMain(m *testing.M) {
	metrics.RegisterMetrics()
	os.Exit(m.Run())
}

func writeCrop(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cropped_object_0.png")
	require.NoError(t, os.WriteFile(path, []byte("\x89PNG fake"), 0o600))
	return path
}

func newClient(url string, retries int) *Client {
	return New(Config{
		Endpoint: url,
		Retry: retry.Policy{
			Service:      "image_host",
			Timeout:      2 * time.Second,
			MaxRetries:   retries,
			InitialDelay: time.Millisecond,
			MaxDelay:     2 * time.Millisecond,
		},
	})
}

func TestUpload_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Client-ID abc123", r.Header.Get("Authorization"))

		file, header, err := r.FormFile("image")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		content, _ := io.ReadAll(file)
		assert.Equal(t, "cropped_object_0.png", header.Filename)
		assert.Equal(t, "\x89PNG fake", string(content))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"link":"https://img.host/abc.png"},"success":true,"status":200}`))
	}))
	defer server.Close()

	link, err := newClient(server.URL, 0).Upload(context.Background(), writeCrop(t), "abc123")
	require.NoError(t, err)
	assert.Equal(t, "https://img.host/abc.png", link)
}

func TestUpload_RateLimitedMessage(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"data":{"error":"rate limited"}}`))
	}))
	defer server.Close()

	_, err := newClient(server.URL, 3).Upload(context.Background(), writeCrop(t), "abc123")
	require.Error(t, err)

	var upErr *domain.UploadError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, http.StatusBadRequest, upErr.Status)
	assert.Equal(t, "rate limited", upErr.Message)
	assert.ErrorIs(t, err, domain.ErrUpload)
	assert.Equal(t, int32(1), calls.Load(), "4xx must not be retried")
}

func TestUpload_ErrorShapes(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"object error", http.StatusForbidden, `{"data":{"error":{"message":"Invalid client_id"}},"success":false}`, "Invalid client_id"},
		{"no error field", http.StatusBadRequest, `{"data":{},"success":false}`, "Unknown error"},
		{"success false on 200", http.StatusOK, `{"data":{"error":"Bad image"},"success":false}`, "Bad image"},
		{"not json", http.StatusBadRequest, `<html>nope</html>`, "Unknown error"},
		{"too many requests", http.StatusTooManyRequests, `{"data":{"error":"slow down"}}`, "slow down"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			_, err := newClient(server.URL, 0).Upload(context.Background(), writeCrop(t), "id")
			var upErr *domain.UploadError
			require.ErrorAs(t, err, &upErr)
			assert.Equal(t, tc.status, upErr.Status)
			assert.Equal(t, tc.message, upErr.Message)
		})
	}
}

func TestUpload_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"link":"https://img.host/x.png"},"success":true,"status":200}`))
	}))
	defer server.Close()

	link, err := newClient(server.URL, 2).Upload(context.Background(), writeCrop(t), "id")
	require.NoError(t, err)
	assert.Equal(t, "https://img.host/x.png", link)
	assert.Equal(t, int32(3), calls.Load())
}

func TestUpload_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := newClient(url, 0).Upload(context.Background(), writeCrop(t), "id")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpload)
	var upErr *domain.UploadError
	assert.False(t, errors.As(err, &upErr), "network errors carry no upstream status")
}

func TestUpload_MissingFile(t *testing.T) {
	_, err := newClient("http://127.0.0.1:1", 0).Upload(context.Background(), filepath.Join(t.TempDir(), "nope.png"), "id")
	assert.ErrorIs(t, err, domain.ErrUpload)
}

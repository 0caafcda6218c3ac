package serpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
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

func newClient(url string, retries int) *Client {
	return New(Config{
		Endpoint: url,
		Retry: retry.Policy{
			Service:      "visual_search",
			Timeout:      2 * time.Second,
			MaxRetries:   retries,
			InitialDelay: time.Millisecond,
			MaxDelay:     2 * time.Millisecond,
		},
	})
}

func query() domain.SearchQuery {
	return domain.SearchQuery{ImageURL: "https://img.host/abc.png", Country: "in", Credential: "serp-key"}
}

func serve(status int, body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func TestSearch_Matches(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "google_lens", q.Get("engine"))
		assert.Equal(t, "in", q.Get("country"))
		assert.Equal(t, "https://img.host/abc.png", q.Get("url"))
		assert.Equal(t, "serp-key", q.Get("api_key"))

		_, _ = w.Write([]byte(`{"visual_matches":[
			{"title":"Chair A","link":"https://www.amazon.in/chair-a","source":"Amazon.in","thumbnail":"https://t/1.jpg"},
			{"title":"Lamp B","link":"https://example.com/lamp-b"}
		]}`))
	}))
	defer server.Close()

	matches, err := newClient(server.URL, 0).Search(context.Background(), query())
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, domain.VisualMatch{
		Title: "Chair A", Link: "https://www.amazon.in/chair-a", Source: "Amazon.in", Thumbnail: "https://t/1.jpg",
	}, matches[0])
	assert.Equal(t, "Lamp B", matches[1].Title)
}

func TestSearch_DefaultCountry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "in", r.URL.Query().Get("country"))
		_, _ = w.Write([]byte(`{"visual_matches":[]}`))
	}))
	defer server.Close()

	q := query()
	q.Country = ""
	_, err := newClient(server.URL, 0).Search(context.Background(), q)
	require.NoError(t, err)
}

func TestSearch_EmptyMatchesIsNoMatches(t *testing.T) {
	server := serve(http.StatusOK, `{"visual_matches":[]}`)
	defer server.Close()

	matches, err := newClient(server.URL, 0).Search(context.Background(), query())
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.NotNil(t, matches)
}

func TestSearch_NoResultsMessageIsNoMatches(t *testing.T) {
	server := serve(http.StatusOK, `{"error":"Google Lens hasn't returned any results for this query."}`)
	defer server.Close()

	matches, err := newClient(server.URL, 0).Search(context.Background(), query())
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestSearch_ErrorField(t *testing.T) {
	server := serve(http.StatusOK, `{"error":"Invalid API key."}`)
	defer server.Close()

	_, err := newClient(server.URL, 0).Search(context.Background(), query())
	var searchErr *domain.SearchError
	require.ErrorAs(t, err, &searchErr)
	assert.Equal(t, "Invalid API key.", searchErr.Message)
	assert.ErrorIs(t, err, domain.ErrSearch)
}

func TestSearch_NonSuccessStatus(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"Invalid API key."}`))
	}))
	defer server.Close()

	_, err := newClient(server.URL, 3).Search(context.Background(), query())
	var searchErr *domain.SearchError
	require.ErrorAs(t, err, &searchErr)
	assert.Equal(t, http.StatusUnauthorized, searchErr.Status)
	assert.Equal(t, int32(1), calls.Load(), "4xx must not be retried")
}

func TestSearch_Malformed(t *testing.T) {
	for name, body := range map[string]string{
		"not json":    `<html>oops</html>`,
		"no fields":   `{"search_metadata":{"status":"Success"}}`,
		"wrong shape": `{"visual_matches":"nope"}`,
	} {
		t.Run(name, func(t *testing.T) {
			server := serve(http.StatusOK, body)
			defer server.Close()

			_, err := newClient(server.URL, 0).Search(context.Background(), query())
			assert.ErrorIs(t, err, domain.ErrMalformedResponse)
			assert.NotErrorIs(t, err, domain.ErrSearch)
		})
	}
}

func TestSearch_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"visual_matches":[{"title":"T","link":"https://x.com/a"}]}`))
	}))
	defer server.Close()

	matches, err := newClient(server.URL, 1).Search(context.Background(), query())
	require.NoError(t, err)
	assert.Len(t, matches, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSearch_EmptyURL(t *testing.T) {
	_, err := newClient("http://127.0.0.1:1", 0).Search(context.Background(), domain.SearchQuery{})
	assert.ErrorIs(t, err, domain.ErrSearch)
}

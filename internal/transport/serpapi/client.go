// Package serpapi queries the SerpApi Google Lens engine for visual matches.
package serpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/lensmatch/internal/domain"
	"github.com/kailas-cloud/lensmatch/internal/logger"
	"github.com/kailas-cloud/lensmatch/internal/transport/retry"
)

// Defaults of the public SerpApi endpoint.
const (
	DefaultEndpoint = "https://serpapi.com/search.json"
	DefaultEngine   = "google_lens"
)

const maxResponseBytes = 4 << 20

// Compile-time check: Client implements domain.VisualSearcher.
var _ domain.VisualSearcher = (*Client)(nil)

// Config holds the visual search client settings.
type Config struct {
	Endpoint   string
	Engine     string
	Retry      retry.Policy
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client runs reverse-image searches with a per-call API key.
type Client struct {
	endpoint string
	engine   string
	retry    retry.Policy
	http     *http.Client
	logger   *zap.Logger
}

// New creates a visual search client.
func New(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Engine == "" {
		cfg.Engine = DefaultEngine
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Client{
		endpoint: cfg.Endpoint,
		engine:   cfg.Engine,
		retry:    cfg.Retry,
		http:     cfg.HTTPClient,
		logger:   cfg.Logger,
	}
}

type searchResponse struct {
	VisualMatches *[]visualMatch `json:"visual_matches"`
	Error         string         `json:"error"`
}

type visualMatch struct {
	Title     string `json:"title"`
	Link      string `json:"link"`
	Source    string `json:"source"`
	Thumbnail string `json:"thumbnail"`
}

// Search implements domain.VisualSearcher.
func (c *Client) Search(ctx context.Context, q domain.SearchQuery) ([]domain.VisualMatch, error) {
	if q.ImageURL == "" {
		return nil, fmt.Errorf("%w: empty image url", domain.ErrSearch)
	}
	country := q.Country
	if country == "" {
		country = domain.DefaultSearchCountry
	}

	var matches []domain.VisualMatch
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		var attemptErr error
		matches, attemptErr = c.attempt(ctx, q.ImageURL, country, q.Credential)
		return attemptErr
	})
	if err != nil {
		var searchErr *domain.SearchError
		if !errors.As(err, &searchErr) && !errors.Is(err, domain.ErrMalformedResponse) {
			err = fmt.Errorf("%w: %w", domain.ErrSearch, err)
		}
		logger.FromContext(ctx).Debug("visual search failed", zap.String("image_url", q.ImageURL), zap.Error(err))
		return nil, err
	}
	return matches, nil
}

func (c *Client) attempt(ctx context.Context, imageURL, country, apiKey string) ([]domain.VisualMatch, error) {
	params := url.Values{}
	params.Set("engine", c.engine)
	params.Set("url", imageURL)
	params.Set("country", country)
	params.Set("api_key", apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), http.NoBody)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	matches, err := parseSearch(resp.StatusCode, raw)
	if err == nil {
		return matches, nil
	}
	if retry.TransientStatus(resp.StatusCode) {
		return nil, err
	}
	return nil, retry.Permanent(err)
}

// parseSearch keeps "no matches" and "malformed" apart: a present visual_matches
// array (even empty) is a genuine result.
func parseSearch(status int, raw []byte) ([]domain.VisualMatch, error) {
	var resp searchResponse
	jsonErr := json.Unmarshal(raw, &resp)

	if status < 200 || status > 299 {
		msg := http.StatusText(status)
		if jsonErr == nil && resp.Error != "" {
			msg = resp.Error
		}
		return nil, &domain.SearchError{Status: status, Message: msg}
	}
	if jsonErr != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrMalformedResponse, jsonErr)
	}

	switch {
	case resp.VisualMatches != nil:
		out := make([]domain.VisualMatch, 0, len(*resp.VisualMatches))
		for _, m := range *resp.VisualMatches {
			out = append(out, domain.VisualMatch(m))
		}
		return out, nil
	case resp.Error != "":
		if isNoResults(resp.Error) {
			return []domain.VisualMatch{}, nil
		}
		return nil, &domain.SearchError{Status: status, Message: resp.Error}
	default:
		return nil, fmt.Errorf("%w: neither visual_matches nor error in body", domain.ErrMalformedResponse)
	}
}

// isNoResults recognizes the engine's "nothing found" message,
// e.g. "Google Lens hasn't returned any results for this query."
func isNoResults(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "hasn't returned any results") ||
		strings.Contains(m, "has not returned any results") ||
		strings.Contains(m, "no results")
}

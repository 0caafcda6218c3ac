package lensmatch

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	imgurClientID string
	serpAPIKey    string
	country       string

	modelPath    string
	inferenceURL string
	labels       []string

	retailDomains []string
	retailFilter  bool

	workDir     string
	cropMaxSide int
	maxPixels   int

	cacheAddrs    []string
	cachePassword string

	historyPath string
	captionKey  string

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithImgur sets the image host client ID. Required.
func WithImgur(clientID string) Option {
	return optionFunc(func(c *clientConfig) {
		c.imgurClientID = clientID
	})
}

// WithSerpAPI sets the visual search API key. Required.
func WithSerpAPI(apiKey string) Option {
	return optionFunc(func(c *clientConfig) {
		c.serpAPIKey = apiKey
	})
}

// WithCountry sets the search country code. Defaults to "in".
func WithCountry(code string) Option {
	return optionFunc(func(c *clientConfig) {
		c.country = code
	})
}

// WithONNXModel runs detection in-process with the given model file.
func WithONNXModel(path string, labels ...string) Option {
	return optionFunc(func(c *clientConfig) {
		c.modelPath = path
		c.inferenceURL = ""
		c.labels = labels
	})
}

// WithInferenceService delegates detection to a remote inference endpoint.
func WithInferenceService(baseURL string) Option {
	return optionFunc(func(c *clientConfig) {
		c.inferenceURL = baseURL
		c.modelPath = ""
	})
}

// WithRetailFilter keeps only matches whose link host is one of the domains
// or a subdomain of one. Without domains the built-in retailer list is used.
func WithRetailFilter(domains ...string) Option {
	return optionFunc(func(c *clientConfig) {
		c.retailFilter = true
		c.retailDomains = domains
	})
}

// WithWorkDir sets the parent directory for per-scan workspaces.
func WithWorkDir(dir string) Option {
	return optionFunc(func(c *clientConfig) {
		c.workDir = dir
	})
}

// WithCropMaxSide downscales crops whose longest side exceeds n pixels. 0 keeps full size.
func WithCropMaxSide(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.cropMaxSide = n
	})
}

// WithMaxImagePixels rejects uploads whose width*height exceeds n with ErrInvalidImage.
func WithMaxImagePixels(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.maxPixels = n
	})
}

// WithCache enables upload and search result caching in Redis or Valkey.
func WithCache(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.cacheAddrs = []string{addr}
		c.cachePassword = password
	})
}

// WithHistory persists finished scans to a SQLite file at path.
func WithHistory(path string) Option {
	return optionFunc(func(c *clientConfig) {
		c.historyPath = path
	})
}

// WithCaptioner enables short crop descriptions via an OpenAI-compatible API.
func WithCaptioner(apiKey string) Option {
	return optionFunc(func(c *clientConfig) {
		c.captionKey = apiKey
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}

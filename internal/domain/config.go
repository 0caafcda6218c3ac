package domain

// KeyPrefix namespaces every key lensmatch writes to the KV store.
const KeyPrefix = "lensmatch:"

// DefaultSearchCountry is the country passed to visual search when none is configured.
const DefaultSearchCountry = "in"

// DefaultMaxImagePixels bounds the decoded canvas of an upload.
const DefaultMaxImagePixels = 40_000_000

// PipelineConfig is injected into the orchestrator at construction.
// Credentials travel with each call to the host and search clients.
type PipelineConfig struct {
	DetectorModelPath string
	HostCredential    string
	SearchCredential  string
	SearchCountry     string

	WorkDir     string
	CropMaxSide int
	Retail      RetailFilter
}

// WithDefaults fills empty fields.
func (c PipelineConfig) WithDefaults() PipelineConfig {
	if c.SearchCountry == "" {
		c.SearchCountry = DefaultSearchCountry
	}
	if c.Retail.MaxCandidates <= 0 {
		c.Retail.MaxCandidates = DefaultMaxCandidates
	}
	return c
}

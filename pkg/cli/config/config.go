package config

import (
	"errors"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v3"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/types"
	"github.com/anishgillella/Voice-Receptionist/pkg/service/action"
	"github.com/anishgillella/Voice-Receptionist/pkg/usecase"
)

// AppConfig is the engine tuning and action routing loaded from TOML. Every
// field is optional; missing values keep the built-in defaults.
type AppConfig struct {
	Retrieval RetrievalSection `toml:"retrieval"`
	Index     IndexSection     `toml:"index"`
	Dispatch  DispatchSection  `toml:"dispatch"`
	Actions   []ActionRoute    `toml:"action"`

	path string
}

type RetrievalSection struct {
	TopK            int     `toml:"top_k"`
	MinSimilarity   float64 `toml:"min_similarity"`
	RerankMargin    float64 `toml:"rerank_margin"`
	MaxContextChars int     `toml:"max_context_chars"`
	Timeout         string  `toml:"timeout"`
	CacheTTL        string  `toml:"cache_ttl"`
	// Rerank enables the LLM re-ranker when a completion client is configured
	Rerank *bool `toml:"rerank"`
}

type IndexSection struct {
	ChunkWords   int `toml:"chunk_words"`
	ChunkOverlap int `toml:"chunk_overlap"`
}

type DispatchSection struct {
	RedispatchOnReanalysis bool   `toml:"redispatch_on_reanalysis"`
	MaxAttempts            int    `toml:"max_attempts"`
	InitialDelay           string `toml:"initial_delay"`
}

// ActionRoute overrides the handling of one action type
type ActionRoute struct {
	Type      string `toml:"type"`
	Enabled   *bool  `toml:"enabled"`
	Notify    *bool  `toml:"notify"`
	Retryable *bool  `toml:"retryable"`
}

// Flags returns the --config flag
func (a *AppConfig) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to the TOML configuration file",
			Sources:     cli.EnvVars("RECEPTIONIST_CONFIG"),
			Destination: &a.path,
		},
	}
}

// Configure loads the file given by --config. Without the flag the
// defaults apply.
func (a *AppConfig) Configure() error {
	if a.path == "" {
		return nil
	}
	loaded, err := LoadAppConfiguration(a.path)
	if err != nil {
		return err
	}
	path := a.path
	*a = *loaded
	a.path = path
	return nil
}

// Validate checks ranges and action types
func (a *AppConfig) Validate() error {
	r := a.Retrieval
	if r.TopK < 0 {
		return goerr.Wrap(ErrInvalidConfig, "retrieval.top_k must not be negative", goerr.V("top_k", r.TopK))
	}
	if r.MinSimilarity < 0 || r.MinSimilarity > 1 {
		return goerr.Wrap(ErrInvalidConfig, "retrieval.min_similarity must be between 0 and 1", goerr.V("min_similarity", r.MinSimilarity))
	}
	if r.RerankMargin < 0 {
		return goerr.Wrap(ErrInvalidConfig, "retrieval.rerank_margin must not be negative", goerr.V("rerank_margin", r.RerankMargin))
	}
	if _, err := parseDuration(r.Timeout, "retrieval.timeout"); err != nil {
		return err
	}
	if _, err := parseDuration(r.CacheTTL, "retrieval.cache_ttl"); err != nil {
		return err
	}

	idx := a.Index
	if idx.ChunkWords < 0 || idx.ChunkOverlap < 0 {
		return goerr.Wrap(ErrInvalidConfig, "index chunk sizes must not be negative")
	}
	if idx.ChunkWords > 0 && idx.ChunkOverlap >= idx.ChunkWords {
		return goerr.Wrap(ErrInvalidConfig, "index.chunk_overlap must be smaller than index.chunk_words",
			goerr.V("chunk_words", idx.ChunkWords),
			goerr.V("chunk_overlap", idx.ChunkOverlap))
	}

	if a.Dispatch.MaxAttempts < 0 {
		return goerr.Wrap(ErrInvalidConfig, "dispatch.max_attempts must not be negative")
	}
	if _, err := parseDuration(a.Dispatch.InitialDelay, "dispatch.initial_delay"); err != nil {
		return err
	}

	seen := make(map[types.ActionType]bool)
	for _, route := range a.Actions {
		t, err := types.ParseActionType(route.Type)
		if err != nil || t == types.ActionTypeNone {
			return goerr.Wrap(ErrInvalidConfig, "invalid action type", goerr.V("type", route.Type))
		}
		if seen[t] {
			return goerr.Wrap(ErrInvalidConfig, "duplicate action route", goerr.V("type", route.Type))
		}
		seen[t] = true
	}
	return nil
}

// LoadAppConfiguration loads the application configuration from a TOML file
func LoadAppConfiguration(path string) (*AppConfig, error) {
	// #nosec G304 - path is expected to be provided by CLI argument
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, goerr.Wrap(ErrConfigNotFound, "config file does not exist", goerr.V("path", path))
		}
		return nil, goerr.Wrap(err, "failed to read config file", goerr.V("path", path))
	}

	var config AppConfig
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, goerr.Wrap(ErrInvalidConfig, "failed to parse TOML config",
			goerr.V("path", path),
			goerr.V("cause", err.Error()))
	}

	if err := config.Validate(); err != nil {
		return nil, goerr.Wrap(err, "config validation failed", goerr.V("path", path))
	}

	return &config, nil
}

// RerankEnabled reports whether the LLM re-ranker should be wired. It is on
// unless the file turns it off.
func (a *AppConfig) RerankEnabled() bool {
	return a.Retrieval.Rerank == nil || *a.Retrieval.Rerank
}

// RetrievalConfig overlays the file on the retrieval defaults
func (a *AppConfig) RetrievalConfig() usecase.RetrievalConfig {
	cfg := usecase.DefaultRetrievalConfig()
	r := a.Retrieval
	if r.TopK > 0 {
		cfg.TopK = r.TopK
	}
	if r.MinSimilarity > 0 {
		cfg.MinSimilarity = r.MinSimilarity
	}
	if r.RerankMargin > 0 {
		cfg.RerankMargin = r.RerankMargin
	}
	if r.MaxContextChars > 0 {
		cfg.MaxContextChars = r.MaxContextChars
	}
	if d, _ := parseDuration(r.Timeout, "retrieval.timeout"); d > 0 {
		cfg.Timeout = d
	}
	if d, _ := parseDuration(r.CacheTTL, "retrieval.cache_ttl"); d > 0 {
		cfg.CacheTTL = d
	}
	return cfg
}

// IndexConfig overlays the file on the chunking defaults
func (a *AppConfig) IndexConfig() usecase.IndexConfig {
	cfg := usecase.DefaultIndexConfig()
	if a.Index.ChunkWords > 0 {
		cfg.ChunkWords = a.Index.ChunkWords
		if cfg.ChunkOverlap >= cfg.ChunkWords {
			cfg.ChunkOverlap = 0
		}
	}
	if a.Index.ChunkOverlap > 0 {
		cfg.ChunkOverlap = a.Index.ChunkOverlap
	}
	return cfg
}

// DispatchConfig overlays the file on the dispatch defaults
func (a *AppConfig) DispatchConfig() usecase.DispatchConfig {
	cfg := usecase.DefaultDispatchConfig()
	cfg.RedispatchOnReanalysis = a.Dispatch.RedispatchOnReanalysis
	if a.Dispatch.MaxAttempts > 0 {
		cfg.RetryPolicy.MaxAttempts = a.Dispatch.MaxAttempts
	}
	if d, _ := parseDuration(a.Dispatch.InitialDelay, "dispatch.initial_delay"); d > 0 {
		cfg.RetryPolicy.InitialDelay = d
	}
	return cfg
}

// ActionRoutes overlays the [[action]] entries on action.DefaultRoutes
func (a *AppConfig) ActionRoutes() map[types.ActionType]action.Route {
	routes := action.DefaultRoutes()
	for _, r := range a.Actions {
		t, err := types.ParseActionType(r.Type)
		if err != nil {
			continue
		}
		route := routes[t]
		if r.Enabled != nil {
			route.Enabled = *r.Enabled
		}
		if r.Notify != nil {
			route.Notify = *r.Notify
		}
		if r.Retryable != nil {
			route.Retryable = *r.Retryable
		}
		routes[t] = route
	}
	return routes
}

func parseDuration(s, field string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, goerr.Wrap(ErrInvalidConfig, "invalid duration", goerr.V("field", field), goerr.V("value", s))
	}
	return d, nil
}

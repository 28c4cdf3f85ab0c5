package oracle

import (
	"fmt"
	"net/http"
	"time"
)

// Kinds accepted by New.
const (
	KindHTTP     = "http"
	KindScripted = "scripted"
)

// Config selects and decorates an oracle.
type Config struct {
	Kind string

	// BaseURL is required for KindHTTP.
	BaseURL string

	// Script seeds KindScripted: token -> outcomes.
	Script map[string][]string

	// RatePerSecond > 0 wraps the oracle in RateLimited.
	RatePerSecond float64
	Burst         int

	// CacheTTL > 0 wraps the oracle in Cached.
	CacheTTL time.Duration

	// HTTPClient overrides the client used by KindHTTP.
	HTTPClient *http.Client
}

// New builds the oracle named by cfg.Kind and applies the configured
// decorators. Caching is applied outermost so cache hits skip the limiter.
func New(cfg Config) (Oracle, error) {
	var (
		o   Oracle
		err error
	)

	switch cfg.Kind {
	case KindHTTP:
		o, err = NewHTTPOracle(cfg.BaseURL, WithHTTPClient(cfg.HTTPClient))
		if err != nil {
			return nil, fmt.Errorf("create http oracle: %w", err)
		}
	case KindScripted:
		scripts := make(map[string][]Outcome, len(cfg.Script))
		for token, raw := range cfg.Script {
			for _, r := range raw {
				outcome, err := ParseOutcome(r)
				if err != nil {
					return nil, fmt.Errorf("script for token %q: %w", token, err)
				}
				scripts[token] = append(scripts[token], outcome)
			}
		}
		o = NewScriptedOracle(scripts)
	default:
		return nil, fmt.Errorf("unknown oracle kind %q (want %s or %s)", cfg.Kind, KindHTTP, KindScripted)
	}

	if cfg.RatePerSecond > 0 {
		o = NewRateLimited(o, cfg.RatePerSecond, cfg.Burst)
	}
	if cfg.CacheTTL > 0 {
		o = NewCached(o, cfg.CacheTTL)
	}
	return o, nil
}

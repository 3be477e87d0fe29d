// Package ai wraps external structured-extraction providers behind a
// single adapter. Absence of a result is not an error: any transport
// failure, missing credential, or unparseable response makes the adapter
// return nil and the caller falls back to heuristic extraction.
package ai

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/xuxing3/JiZhang/internal/config"
	"github.com/xuxing3/JiZhang/internal/extract"
)

// Provider is one external extraction backend.
type Provider interface {
	Name() string
	ExtractText(ctx context.Context, text string) (*extract.Draft, error)
	ExtractImage(ctx context.Context, mimeType string, data []byte) (*extract.Draft, error)
}

// Extractor tries configured providers in order and absorbs failures.
type Extractor struct {
	providers []Provider
	log       zerolog.Logger
}

// NewExtractor assembles the provider chain from configuration. An
// explicit AI_PROVIDER restricts the chain to that provider (if it has
// credentials); otherwise every credentialed provider is tried in a
// fixed order, DashScope first. The returned extractor may hold zero
// providers, in which case every call yields nil.
func NewExtractor(cfg *config.Config, log zerolog.Logger) *Extractor {
	var providers []Provider
	add := func(name string) {
		switch {
		case name == config.ProviderDashScope && cfg.DashScopeKey != "":
			providers = append(providers, NewDashScope(cfg.DashScopeKey, log))
		case name == config.ProviderGemini && cfg.GeminiKey != "":
			providers = append(providers, NewGemini(cfg.GeminiKey, log))
		}
	}

	if cfg.AIProvider != "" {
		add(cfg.AIProvider)
	} else {
		add(config.ProviderDashScope)
		add(config.ProviderGemini)
	}

	return &Extractor{providers: providers, log: log}
}

// Enabled reports whether at least one provider is configured.
func (e *Extractor) Enabled() bool { return len(e.providers) > 0 }

// FromText asks each provider in turn for a draft. Failures are logged
// and swallowed; a single attempt is made per provider, no retries.
func (e *Extractor) FromText(ctx context.Context, text string) *extract.Draft {
	for _, p := range e.providers {
		draft, err := p.ExtractText(ctx, text)
		if err != nil {
			e.log.Warn().Err(err).Str("provider", p.Name()).Msg("AI text extraction failed")
			continue
		}
		return draft
	}
	return nil
}

// FromImage is FromText for receipt screenshots.
func (e *Extractor) FromImage(ctx context.Context, mimeType string, data []byte) *extract.Draft {
	for _, p := range e.providers {
		draft, err := p.ExtractImage(ctx, mimeType, data)
		if err != nil {
			e.log.Warn().Err(err).Str("provider", p.Name()).Msg("AI image extraction failed")
			continue
		}
		return draft
	}
	return nil
}

package offline

import (
	"log/slog"

	"github.com/poiesic/advisor/ai"
)

// Provider implements ai.Provider without any network access.
type Provider struct {
	embedder  *Embedder
	generator *Generator
	logger    *slog.Logger
}

// NewProvider creates an offline provider. Only config.OfflineDimension is used.
//
// Returns ai.Provider interface for consistency with the live provider.
func NewProvider(config *ai.Config) (ai.Provider, error) {
	dim := DefaultDimension
	if config != nil && config.OfflineDimension > 0 {
		dim = config.OfflineDimension
	}
	return &Provider{
		embedder:  NewEmbedder(dim),
		generator: NewGenerator(),
		logger:    slog.Default().With("component", "offline-provider"),
	}, nil
}

// Embedder returns the digest embedder.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// Generator returns the template generator.
func (p *Provider) Generator() ai.Generator {
	return p.generator
}

// Close is a no-op.
func (p *Provider) Close() error {
	p.logger.Debug("closing offline provider")
	return nil
}

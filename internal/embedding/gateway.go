package embedding

import (
	"context"

	"go.uber.org/zap"
)

// Backend is the raw embedding call the gateway wraps.
type Backend interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Gateway converts text to fixed-length vectors and never surfaces backend
// failure: an erroring or mis-sized response becomes a zero vector of the
// configured dimensionality. Callers keep a uniform happy path at the cost
// of occasionally degraded retrieval, which is logged.
type Gateway struct {
	backend   Backend
	dimension int
	log       *zap.Logger
}

func NewGateway(backend Backend, dimension int, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	if dimension <= 0 {
		dimension = 768
	}
	return &Gateway{backend: backend, dimension: dimension, log: log}
}

// Dimension returns the configured vector dimensionality.
func (g *Gateway) Dimension() int { return g.dimension }

// EmbedOne embeds a single text, falling back to a zero vector on failure.
func (g *Gateway) EmbedOne(ctx context.Context, text string) []float32 {
	vec, err := g.backend.Embed(ctx, text)
	if err != nil {
		g.log.Error("embedding failed, using zero vector",
			zap.Int("text_len", len(text)),
			zap.Error(err))
		return make([]float32, g.dimension)
	}
	if len(vec) != g.dimension {
		g.log.Error("embedding dimension mismatch, using zero vector",
			zap.Int("got", len(vec)),
			zap.Int("want", g.dimension))
		return make([]float32, g.dimension)
	}
	return vec
}

// EmbedMany embeds every input, returning one vector per text even when
// individual calls fail.
func (g *Gateway) EmbedMany(ctx context.Context, texts []string) [][]float32 {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = g.EmbedOne(ctx, text)
	}
	return vectors
}

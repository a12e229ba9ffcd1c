package answer

import (
	"context"
	"time"

	"github.com/hyperjump/ragkb/internal/llm"
	"github.com/hyperjump/ragkb/internal/models"
	"go.uber.org/zap"
)

// NoInformationMessage is returned when retrieval found nothing.
const NoInformationMessage = "I couldn't find relevant information to answer your question."

// Synthesis modes.
const (
	ModeGrounded   = "grounded"
	ModeExtractive = "extractive"
)

// Synthesizer produces an answer for a query from non-empty ranked results.
type Synthesizer interface {
	Synthesize(ctx context.Context, query string, results []models.QueryResult) string
	Mode() string
}

// Options tune the grounded strategy.
type Options struct {
	Temperature     float32
	MaxTokens       int
	GenerateTimeout time.Duration
	Logger          *zap.Logger
}

// DefaultOptions returns temperature 0.3, 500 output tokens and a 60s generation timeout.
func DefaultOptions() Options {
	return Options{Temperature: 0.3, MaxTokens: 500, GenerateTimeout: 60 * time.Second}
}

func (o Options) withDefaults() Options {
	if o.MaxTokens <= 0 {
		o.MaxTokens = 500
	}
	if o.GenerateTimeout <= 0 {
		o.GenerateTimeout = 60 * time.Second
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// NewSynthesizer picks the strategy once: grounded when backend is non-nil, extractive otherwise.
func NewSynthesizer(backend llm.Backend, opts Options) Synthesizer {
	opts = opts.withDefaults()
	if backend != nil {
		return &GroundedSynthesizer{backend: backend, opts: opts}
	}
	return &ExtractiveSynthesizer{}
}

// Respond returns NoInformationMessage for empty results without touching s; otherwise it
// delegates to s.
func Respond(ctx context.Context, s Synthesizer, query string, results []models.QueryResult) string {
	if len(results) == 0 {
		return NoInformationMessage
	}
	return s.Synthesize(ctx, query, results)
}

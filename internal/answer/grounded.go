package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hyperjump/ragkb/internal/llm"
	"github.com/hyperjump/ragkb/internal/models"
	"go.uber.org/zap"
)

const systemPrompt = `You are a helpful AI assistant that answers questions based on provided context.

Instructions:
- Answer the question based ONLY on the provided context
- If the context doesn't contain enough information, say so clearly
- Be concise but comprehensive
- Cite specific sources when making claims
- If asked about something not in the context, politely decline and explain what information is available`

// GroundedSynthesizer asks a generative backend to answer strictly from the assembled context.
type GroundedSynthesizer struct {
	backend llm.Backend
	opts    Options
}

// Mode returns ModeGrounded.
func (g *GroundedSynthesizer) Mode() string {
	return ModeGrounded
}

// Synthesize makes exactly one backend call. Failures are not retried; they become the answer text.
func (g *GroundedSynthesizer) Synthesize(ctx context.Context, query string, results []models.QueryResult) string {
	user := fmt.Sprintf("Context:\n%s\n\nQuestion: %s\n\nPlease provide a detailed answer based on the context above.",
		AssembleContext(results), query)

	ctx, cancel := context.WithTimeout(ctx, g.opts.GenerateTimeout)
	defer cancel()

	out, err := g.backend.Generate(ctx, systemPrompt, user, g.opts.Temperature, g.opts.MaxTokens)
	if err != nil {
		var be *llm.BackendError
		if !errors.As(err, &be) {
			be = &llm.BackendError{Provider: g.backend.Name(), Err: err}
		}
		g.opts.Logger.Error("answer generation failed",
			zap.String("provider", be.Provider),
			zap.Error(be.Err))
		return fmt.Sprintf("Sorry, I encountered an error generating the response: %v", be.Err)
	}
	return strings.TrimSpace(out)
}

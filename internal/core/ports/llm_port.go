package ports

import (
	"context"

	"github.com/vibin/lead-assistant/internal/core/domain"
)

// AnswerPort produces the assistant's reply to a user question. Implementations
// keep a short per-user conversation memory.
type AnswerPort interface {
	Answer(ctx context.Context, query, userID string) (string, error)
}

// LeadAnalyzerPort summarises a batch of dialogue turns for a sales manager
type LeadAnalyzerPort interface {
	Analyze(ctx context.Context, turns []domain.Turn) (string, error)
}

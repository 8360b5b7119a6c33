package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/frontdesk/backend/internal/models"
)

// Completer is the language-model collaborator: an ordered conversation
// plus the policy text in, free text out. Implementations must honor the
// context deadline.
type Completer interface {
	Complete(ctx context.Context, policy string, turns []models.ConversationTurn) (string, error)
}

type RateLimitError struct {
	RetryAfter time.Duration
}

func (r RateLimitError) Error() string {
	if r.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", r.RetryAfter)
	}
	return "rate limited"
}

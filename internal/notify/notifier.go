package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// Notifier is the outbound customer follow-up channel. Fire-and-forget:
// no delivery guarantee, no error to handle.
type Notifier interface {
	Notify(ctx context.Context, customerID string, customerPhone *string, question, answer string)
}

// LogNotifier stands in for an SMS or call-back integration by logging the
// follow-up that would have been sent.
type LogNotifier struct {
	Logger zerolog.Logger
}

func (n LogNotifier) Notify(ctx context.Context, customerID string, customerPhone *string, question, answer string) {
	evt := n.Logger.Info().
		Str("customer_id", customerID).
		Str("question", question).
		Str("message", "Hi! I checked with my supervisor about your question. "+answer)
	if customerPhone != nil {
		evt = evt.Str("customer_phone", *customerPhone)
	}
	evt.Msg("customer follow-up")
}

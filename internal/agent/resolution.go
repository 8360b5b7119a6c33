package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/frontdesk/backend/internal/models"
)

// Resolve applies a supervisor's answer to a pending help request and
// folds it into the knowledge base.
//
// The pending→resolved transition is conditional on the request still
// being pending, so a resolution that races the timeout sweep loses
// cleanly with ErrInvalidState instead of overwriting a terminal state.
func (a *Agent) Resolve(ctx context.Context, requestID, answerText, supervisorID string) error {
	req, err := a.Requests.GetHelpRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Status != models.StatusPending {
		return models.ErrInvalidState
	}

	now := time.Now().UTC()
	err = a.Requests.TransitionRequest(ctx, requestID, models.StatusPending, models.RequestTransition{
		Status:           models.StatusResolved,
		ResolvedAt:       now,
		SupervisorAnswer: &answerText,
		SupervisorID:     &supervisorID,
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return models.ErrInvalidState
		}
		return err
	}

	// Learning is append-only: a fresh entry per resolution, never a merge
	// with earlier answers to the same question.
	if _, err := a.Knowledge.AddKnowledge(ctx, req.Question, answerText, "supervisor", []string{"learned", "supervisor_response"}); err != nil {
		a.Logger.Error().Err(err).Str("request_id", requestID).Msg("knowledge append failed")
	}

	a.Notifier.Notify(ctx, req.CustomerID, req.CustomerPhone, req.Question, answerText)
	a.History.AppendIfPresent(req.CustomerID, models.ConversationTurn{
		Speaker: models.SpeakerAgent,
		Text:    fmt.Sprintf("Following up on your question: %s. Here's the answer: %s", req.Question, answerText),
	})

	a.Logger.Info().Str("request_id", requestID).Str("supervisor_id", supervisorID).Msg("help request resolved")
	a.Bus.Publish(EventRequestResolved, map[string]any{
		"request_id": requestID,
	})
	return nil
}

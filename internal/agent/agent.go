package agent

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/frontdesk/backend/internal/llm"
	"github.com/frontdesk/backend/internal/models"
)

const (
	defaultMarker        = "[ESCALATE]"
	defaultModelTimeout  = 15 * time.Second
	defaultPromptPairs   = 5
	defaultSnapshotPairs = 3

	deferralMessage        = "Let me check with my supervisor and get back to you shortly. We'll call you back with the answer!"
	failureDeferralMessage = "I'm having trouble processing your request. Let me get a supervisor to help you."
)

type KnowledgeStore interface {
	SearchKnowledge(ctx context.Context, query string) ([]models.KnowledgeEntry, error)
	AddKnowledge(ctx context.Context, question, answer, source string, tags []string) (string, error)
	IncrementKnowledgeUsage(ctx context.Context, id string) error
}

type RequestStore interface {
	CreateHelpRequest(ctx context.Context, question, customerID string, customerPhone *string, contextJSON []byte) (string, error)
	GetHelpRequest(ctx context.Context, id string) (models.HelpRequest, error)
	TransitionRequest(ctx context.Context, id string, expected models.RequestStatus, upd models.RequestTransition) error
}

// EventPublisher fans lifecycle events out to observers, best-effort.
type EventPublisher interface {
	Publish(kind string, payload map[string]any)
}

// Notifier is the customer follow-up channel, fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, customerID string, customerPhone *string, question, answer string)
}

const (
	EventNewHelpRequest  = "new_help_request"
	EventRequestResolved = "request_resolved"
)

// Agent decides, per question, between answering from learned knowledge,
// answering from the model, and escalating to a supervisor.
type Agent struct {
	Knowledge KnowledgeStore
	Requests  RequestStore
	Completer llm.Completer
	Bus       EventPublisher
	Notifier  Notifier
	History   *History
	Logger    zerolog.Logger

	Marker              string
	ModelTimeout        time.Duration
	PromptWindowPairs   int
	SnapshotWindowPairs int
}

func (a *Agent) marker() string {
	if a.Marker == "" {
		return defaultMarker
	}
	return a.Marker
}

func (a *Agent) modelTimeout() time.Duration {
	if a.ModelTimeout <= 0 {
		return defaultModelTimeout
	}
	return a.ModelTimeout
}

func (a *Agent) promptPairs() int {
	if a.PromptWindowPairs <= 0 {
		return defaultPromptPairs
	}
	return a.PromptWindowPairs
}

func (a *Agent) snapshotPairs() int {
	if a.SnapshotWindowPairs <= 0 {
		return defaultSnapshotPairs
	}
	return a.SnapshotWindowPairs
}

// modelOutcome is the tagged result of consulting the model: either an
// answer or an escalation with its reason. Service failures are folded
// into the escalate branch, never surfaced to the customer.
type modelOutcome struct {
	answered string
	escalate bool
	failure  string
}

func (a *Agent) consult(ctx context.Context, customerID, question string) modelOutcome {
	turns := a.History.Window(customerID, a.promptPairs())
	turns = append(turns, models.ConversationTurn{Speaker: models.SpeakerCustomer, Text: question})

	callCtx, cancel := context.WithTimeout(ctx, a.modelTimeout())
	defer cancel()

	reply, err := a.Completer.Complete(callCtx, buildPolicy(a.marker()), turns)
	if err != nil {
		a.Logger.Warn().Err(err).Str("customer_id", customerID).Msg("model call failed, escalating")
		return modelOutcome{escalate: true, failure: err.Error()}
	}

	reply = strings.TrimSpace(reply)
	if strings.HasPrefix(reply, a.marker()) {
		return modelOutcome{escalate: true}
	}
	return modelOutcome{answered: reply}
}

// Answer runs the escalation decision for one customer question.
//
// The only error it returns is a failed help-request creation: without a
// durable record the interaction would be lost. Everything else degrades
// into either a knowledge miss or an escalation.
func (a *Agent) Answer(ctx context.Context, question, customerID string, customerPhone *string, callerContext map[string]any) (models.AgentResult, error) {
	entries, err := a.Knowledge.SearchKnowledge(ctx, question)
	if err != nil {
		// Store trouble during lookup is a miss, not a failure.
		a.Logger.Warn().Err(err).Msg("knowledge search failed, falling through to model")
		entries = nil
	}
	if len(entries) > 0 {
		hit := entries[0]
		if err := a.Knowledge.IncrementKnowledgeUsage(ctx, hit.ID); err != nil {
			a.Logger.Warn().Err(err).Str("knowledge_id", hit.ID).Msg("usage increment failed")
		}
		return models.AgentResult{Response: hit.Answer, KnowledgeUsed: &hit.ID}, nil
	}

	outcome := a.consult(ctx, customerID, question)
	if !outcome.escalate {
		a.History.Append(customerID,
			models.ConversationTurn{Speaker: models.SpeakerCustomer, Text: question},
			models.ConversationTurn{Speaker: models.SpeakerAgent, Text: outcome.answered},
		)
		return models.AgentResult{Response: outcome.answered}, nil
	}

	requestID, err := a.escalate(ctx, question, customerID, customerPhone, callerContext, outcome.failure)
	if err != nil {
		return models.AgentResult{}, err
	}

	response := deferralMessage
	if outcome.failure != "" {
		response = failureDeferralMessage
	}
	a.History.Append(customerID,
		models.ConversationTurn{Speaker: models.SpeakerCustomer, Text: question},
		models.ConversationTurn{Speaker: models.SpeakerAgent, Text: response},
	)

	return models.AgentResult{Response: response, NeedsHelp: true, HelpRequestID: &requestID}, nil
}

func (a *Agent) escalate(ctx context.Context, question, customerID string, customerPhone *string, callerContext map[string]any, failure string) (string, error) {
	if callerContext == nil {
		callerContext = map[string]any{}
	}
	snapshot := map[string]any{
		"conversation_history": a.History.Window(customerID, a.snapshotPairs()),
		"additional_context":   callerContext,
	}
	if failure != "" {
		snapshot["error"] = failure
	}
	contextJSON, _ := json.Marshal(snapshot)

	requestID, err := a.Requests.CreateHelpRequest(ctx, question, customerID, customerPhone, contextJSON)
	if err != nil {
		a.Logger.Error().Err(err).Str("customer_id", customerID).Msg("help request creation failed")
		return "", err
	}

	a.Logger.Info().Str("request_id", requestID).Str("customer_id", customerID).Msg("help request created")
	a.Bus.Publish(EventNewHelpRequest, map[string]any{
		"request_id":  requestID,
		"question":    question,
		"customer_id": customerID,
	})
	return requestID, nil
}

package llm

import (
	"context"
	"hash/fnv"
	"strings"

	"github.com/frontdesk/backend/internal/models"
)

// MockCompleter is a deterministic stand-in for local development. It
// escalates on topics the policy tells the real model to escalate on and
// otherwise picks a canned reply by hashing the question.
type MockCompleter struct {
	Marker string
}

var escalationTopics = []string{
	"refund", "discount", "availability", "available", "special request", "appointment tomorrow",
}

var cannedReplies = []string{
	"Happy to help with that! Is there anything else you'd like to know?",
	"Of course! Our team would be glad to take care of that for you.",
	"Great question. Yes, we can do that for you at the salon.",
	"Absolutely, just let us know when you'd like to come in.",
}

func (m MockCompleter) Complete(ctx context.Context, policy string, turns []models.ConversationTurn) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	marker := m.Marker
	if marker == "" {
		marker = "[ESCALATE]"
	}

	question := ""
	if len(turns) > 0 {
		question = turns[len(turns)-1].Text
	}
	lower := strings.ToLower(question)
	for _, topic := range escalationTopics {
		if strings.Contains(lower, topic) {
			return marker + " I'm not sure about that one.", nil
		}
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(question))
	return cannedReplies[int(h.Sum64()%uint64(len(cannedReplies)))], nil
}

package agent

import (
	"sync"

	"github.com/frontdesk/backend/internal/models"
)

// History holds the per-customer conversation turns. Storage is unbounded
// and process-lifetime only; readers always take a bounded trailing window.
// Appends for one customer are serialized, different customers proceed
// independently.
type History struct {
	mu         sync.RWMutex
	byCustomer map[string]*customerHistory
}

type customerHistory struct {
	mu    sync.Mutex
	turns []models.ConversationTurn
}

func NewHistory() *History {
	return &History{byCustomer: map[string]*customerHistory{}}
}

func (h *History) forCustomer(customerID string) *customerHistory {
	h.mu.RLock()
	ch := h.byCustomer[customerID]
	h.mu.RUnlock()
	if ch != nil {
		return ch
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if ch = h.byCustomer[customerID]; ch == nil {
		ch = &customerHistory{}
		h.byCustomer[customerID] = ch
	}
	return ch
}

func (h *History) Append(customerID string, turns ...models.ConversationTurn) {
	ch := h.forCustomer(customerID)
	ch.mu.Lock()
	ch.turns = append(ch.turns, turns...)
	ch.mu.Unlock()
}

// AppendIfPresent appends only when the customer already has resident
// history, reporting whether it did. Used for resolution follow-ups, which
// are best-effort and lost across restarts.
func (h *History) AppendIfPresent(customerID string, turn models.ConversationTurn) bool {
	h.mu.RLock()
	ch := h.byCustomer[customerID]
	h.mu.RUnlock()
	if ch == nil {
		return false
	}
	ch.mu.Lock()
	ch.turns = append(ch.turns, turn)
	ch.mu.Unlock()
	return true
}

// Window returns a copy of the customer's last pairs*2 turns.
func (h *History) Window(customerID string, pairs int) []models.ConversationTurn {
	h.mu.RLock()
	ch := h.byCustomer[customerID]
	h.mu.RUnlock()
	if ch == nil || pairs <= 0 {
		return nil
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()
	n := pairs * 2
	if n > len(ch.turns) {
		n = len(ch.turns)
	}
	if n == 0 {
		return nil
	}
	out := make([]models.ConversationTurn, n)
	copy(out, ch.turns[len(ch.turns)-n:])
	return out
}

// Len reports the number of stored turns for a customer.
func (h *History) Len(customerID string) int {
	h.mu.RLock()
	ch := h.byCustomer[customerID]
	h.mu.RUnlock()
	if ch == nil {
		return 0
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return len(ch.turns)
}

// Clear drops a customer's history entirely.
func (h *History) Clear(customerID string) {
	h.mu.Lock()
	delete(h.byCustomer, customerID)
	h.mu.Unlock()
}

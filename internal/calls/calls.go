// Package calls keeps an in-memory registry of simulated customer calls.
// No audio is involved: calls carry text transcripts only, the way a real
// voice integration would after transcription.
package calls

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/frontdesk/backend/internal/models"
)

const defaultMaxLogs = 200

type TranscriptEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
}

type Call struct {
	ID            string            `json:"call_id"`
	CustomerID    string            `json:"customer_id"`
	CustomerPhone string            `json:"customer_phone"`
	CustomerName  string            `json:"customer_name"`
	StartedAt     time.Time         `json:"started_at"`
	EndedAt       *time.Time        `json:"ended_at,omitempty"`
	Status        string            `json:"status"`
	Transcript    []TranscriptEntry `json:"transcript"`
}

type Registry struct {
	mu      sync.Mutex
	active  map[string]*Call
	logs    []Call
	maxLogs int
}

func NewRegistry() *Registry {
	return &Registry{
		active:  map[string]*Call{},
		maxLogs: defaultMaxLogs,
	}
}

// Begin opens a simulated call and returns its id.
func (r *Registry) Begin(customerID, customerPhone, customerName string) string {
	if customerName == "" {
		customerName = "Customer"
	}
	call := &Call{
		ID:            "call_" + uuid.NewString(),
		CustomerID:    customerID,
		CustomerPhone: customerPhone,
		CustomerName:  customerName,
		StartedAt:     time.Now().UTC(),
		Status:        "active",
	}
	r.mu.Lock()
	r.active[call.ID] = call
	r.mu.Unlock()
	return call.ID
}

// AddTranscript appends a line to an active call's transcript.
func (r *Registry) AddTranscript(callID, speaker, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	call, ok := r.active[callID]
	if !ok {
		return models.ErrNotFound
	}
	call.Transcript = append(call.Transcript, TranscriptEntry{
		Timestamp: time.Now().UTC(),
		Speaker:   speaker,
		Text:      text,
	})
	return nil
}

// End closes an active call and moves it to the bounded call log.
func (r *Registry) End(callID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	call, ok := r.active[callID]
	if !ok {
		return models.ErrNotFound
	}
	delete(r.active, callID)

	now := time.Now().UTC()
	call.EndedAt = &now
	call.Status = "ended"
	r.logs = append(r.logs, *call)
	if len(r.logs) > r.maxLogs {
		r.logs = r.logs[len(r.logs)-r.maxLogs:]
	}
	return nil
}

// Active lists calls currently in progress.
func (r *Registry) Active() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, 0, len(r.active))
	for _, c := range r.active {
		out = append(out, *c)
	}
	return out
}

// Logs returns up to limit of the most recent ended calls, newest first.
func (r *Registry) Logs(limit int) []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 || limit > len(r.logs) {
		limit = len(r.logs)
	}
	out := make([]Call, 0, limit)
	for i := len(r.logs) - 1; i >= len(r.logs)-limit; i-- {
		out = append(out, r.logs[i])
	}
	return out
}

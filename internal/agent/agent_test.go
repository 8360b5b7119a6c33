package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/frontdesk/backend/internal/models"
)

type fakeKnowledge struct {
	mu      sync.Mutex
	entries []models.KnowledgeEntry
	usage   map[string]int
}

func (f *fakeKnowledge) SearchKnowledge(ctx context.Context, query string) ([]models.KnowledgeEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := strings.ToLower(query)
	var out []models.KnowledgeEntry
	for _, e := range f.entries {
		if strings.Contains(strings.ToLower(e.Question), q) || strings.Contains(strings.ToLower(e.Answer), q) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeKnowledge) AddKnowledge(ctx context.Context, question, answer, source string, tags []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := fmt.Sprintf("k%d", len(f.entries)+1)
	f.entries = append(f.entries, models.KnowledgeEntry{ID: id, Question: question, Answer: answer, Source: source, Tags: tags})
	return id, nil
}

func (f *fakeKnowledge) IncrementKnowledgeUsage(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.usage == nil {
		f.usage = map[string]int{}
	}
	f.usage[id]++
	return nil
}

type fakeRequests struct {
	mu         sync.Mutex
	requests   map[string]*models.HelpRequest
	nextID     int
	failCreate bool
}

func (f *fakeRequests) CreateHelpRequest(ctx context.Context, question, customerID string, customerPhone *string, contextJSON []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate {
		return "", errors.New("store unavailable")
	}
	if f.requests == nil {
		f.requests = map[string]*models.HelpRequest{}
	}
	f.nextID++
	id := fmt.Sprintf("r%d", f.nextID)
	f.requests[id] = &models.HelpRequest{
		ID:            id,
		Question:      question,
		CustomerID:    customerID,
		CustomerPhone: customerPhone,
		Context:       contextJSON,
		Status:        models.StatusPending,
	}
	return id, nil
}

func (f *fakeRequests) GetHelpRequest(ctx context.Context, id string) (models.HelpRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok {
		return models.HelpRequest{}, models.ErrNotFound
	}
	return *r, nil
}

func (f *fakeRequests) TransitionRequest(ctx context.Context, id string, expected models.RequestStatus, upd models.RequestTransition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok {
		return models.ErrNotFound
	}
	if r.Status != expected {
		return models.ErrConflict
	}
	r.Status = upd.Status
	resolvedAt := upd.ResolvedAt
	r.ResolvedAt = &resolvedAt
	if upd.SupervisorAnswer != nil {
		r.SupervisorAnswer = upd.SupervisorAnswer
	}
	if upd.SupervisorID != nil {
		r.SupervisorID = upd.SupervisorID
	}
	return nil
}

func (f *fakeRequests) ListPendingRequests(ctx context.Context) ([]models.HelpRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.HelpRequest
	for _, r := range f.requests {
		if r.Status == models.StatusPending {
			out = append(out, *r)
		}
	}
	return out, nil
}

type busEvent struct {
	kind    string
	payload map[string]any
}

type fakeBus struct {
	mu     sync.Mutex
	events []busEvent
}

func (f *fakeBus) Publish(kind string, payload map[string]any) {
	f.mu.Lock()
	f.events = append(f.events, busEvent{kind: kind, payload: payload})
	f.mu.Unlock()
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeNotifier) Notify(ctx context.Context, customerID string, customerPhone *string, question, answer string) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
}

type fakeCompleter struct {
	reply string
	err   error
}

func (f fakeCompleter) Complete(ctx context.Context, policy string, turns []models.ConversationTurn) (string, error) {
	return f.reply, f.err
}

func newTestAgent(completer fakeCompleter) (*Agent, *fakeKnowledge, *fakeRequests, *fakeBus, *fakeNotifier) {
	knowledge := &fakeKnowledge{}
	requests := &fakeRequests{}
	bus := &fakeBus{}
	notifier := &fakeNotifier{}
	a := &Agent{
		Knowledge: knowledge,
		Requests:  requests,
		Completer: completer,
		Bus:       bus,
		Notifier:  notifier,
		History:   NewHistory(),
		Logger:    zerolog.Nop(),
	}
	return a, knowledge, requests, bus, notifier
}

func TestAnswerKnowledgeHit(t *testing.T) {
	a, knowledge, _, _, _ := newTestAgent(fakeCompleter{reply: "should not be called"})
	knowledge.entries = []models.KnowledgeEntry{
		{ID: "k1", Question: "What are your hours?", Answer: "9-8 Mon-Sat"},
	}

	res, err := a.Answer(context.Background(), "what are your hours", "cust1", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Response != "9-8 Mon-Sat" {
		t.Fatalf("expected stored answer, got %q", res.Response)
	}
	if res.NeedsHelp {
		t.Fatalf("expected needs_help=false")
	}
	if res.KnowledgeUsed == nil || *res.KnowledgeUsed != "k1" {
		t.Fatalf("expected knowledge_used=k1, got %v", res.KnowledgeUsed)
	}
	if knowledge.usage["k1"] != 1 {
		t.Fatalf("expected usage count 1, got %d", knowledge.usage["k1"])
	}
	if a.History.Len("cust1") != 0 {
		t.Fatalf("knowledge hit must not touch history, got %d turns", a.History.Len("cust1"))
	}
}

func TestAnswerEscalatesOnMarker(t *testing.T) {
	a, _, requests, bus, _ := newTestAgent(fakeCompleter{reply: "[ESCALATE] unsure"})

	res, err := a.Answer(context.Background(), "Do you have availability tomorrow?", "cust1", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.NeedsHelp {
		t.Fatalf("expected needs_help=true")
	}
	if res.Response != deferralMessage {
		t.Fatalf("expected deferral message, got %q", res.Response)
	}
	if res.HelpRequestID == nil {
		t.Fatalf("expected help request id")
	}
	if len(requests.requests) != 1 {
		t.Fatalf("expected exactly 1 request, got %d", len(requests.requests))
	}
	req := requests.requests[*res.HelpRequestID]
	if req.Question != "Do you have availability tomorrow?" {
		t.Fatalf("request question mismatch: %q", req.Question)
	}
	if req.Status != models.StatusPending {
		t.Fatalf("expected pending, got %s", req.Status)
	}
	if a.History.Len("cust1") != 2 {
		t.Fatalf("expected 2 turns appended, got %d", a.History.Len("cust1"))
	}
	if len(bus.events) != 1 || bus.events[0].kind != EventNewHelpRequest {
		t.Fatalf("expected one new_help_request event, got %+v", bus.events)
	}
}

func TestAnswerModelReply(t *testing.T) {
	a, _, requests, _, _ := newTestAgent(fakeCompleter{reply: "We open at 9 AM."})

	res, err := a.Answer(context.Background(), "When do you open?", "cust1", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Response != "We open at 9 AM." {
		t.Fatalf("expected model reply verbatim, got %q", res.Response)
	}
	if res.NeedsHelp || res.KnowledgeUsed != nil {
		t.Fatalf("expected plain answer, got %+v", res)
	}
	if len(requests.requests) != 0 {
		t.Fatalf("expected no requests, got %d", len(requests.requests))
	}
	if a.History.Len("cust1") != 2 {
		t.Fatalf("expected 2 turns appended, got %d", a.History.Len("cust1"))
	}
}

func TestAnswerServiceFailureFallsBackToEscalation(t *testing.T) {
	a, _, requests, _, _ := newTestAgent(fakeCompleter{err: errors.New("provider exploded")})

	res, err := a.Answer(context.Background(), "When do you open?", "cust1", nil, nil)
	if err != nil {
		t.Fatalf("service failure must not surface: %v", err)
	}
	if !res.NeedsHelp {
		t.Fatalf("expected escalation on service failure")
	}
	if res.Response != failureDeferralMessage {
		t.Fatalf("expected failure deferral, got %q", res.Response)
	}
	if len(requests.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(requests.requests))
	}
	req := requests.requests[*res.HelpRequestID]
	if !strings.Contains(string(req.Context), "provider exploded") {
		t.Fatalf("expected failure recorded in context, got %s", req.Context)
	}
}

func TestAnswerCreateFailureIsFatal(t *testing.T) {
	a, _, requests, _, _ := newTestAgent(fakeCompleter{reply: "[ESCALATE] unsure"})
	requests.failCreate = true

	if _, err := a.Answer(context.Background(), "hello?", "cust1", nil, nil); err == nil {
		t.Fatalf("expected error when request creation fails")
	}
}

func TestAnswerCustomMarker(t *testing.T) {
	a, _, requests, _, _ := newTestAgent(fakeCompleter{reply: "<DEFER> no idea"})
	a.Marker = "<DEFER>"

	res, err := a.Answer(context.Background(), "hm?", "cust1", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.NeedsHelp || len(requests.requests) != 1 {
		t.Fatalf("expected escalation on custom marker, got %+v", res)
	}
}

func TestResolveLearnsAndNotifies(t *testing.T) {
	a, knowledge, requests, bus, notifier := newTestAgent(fakeCompleter{reply: "[ESCALATE] unsure"})
	res, err := a.Answer(context.Background(), "Do you do bridal packages?", "cust1", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	id := *res.HelpRequestID

	if err := a.Resolve(context.Background(), id, "Yes, bridal packages start at $200.", "sup1"); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	req := requests.requests[id]
	if req.Status != models.StatusResolved {
		t.Fatalf("expected resolved, got %s", req.Status)
	}
	if req.ResolvedAt == nil || req.SupervisorAnswer == nil || *req.SupervisorAnswer != "Yes, bridal packages start at $200." {
		t.Fatalf("terminal fields not set: %+v", req)
	}
	if req.SupervisorID == nil || *req.SupervisorID != "sup1" {
		t.Fatalf("expected supervisor id sup1, got %v", req.SupervisorID)
	}

	if len(knowledge.entries) != 1 {
		t.Fatalf("expected exactly 1 knowledge entry, got %d", len(knowledge.entries))
	}
	entry := knowledge.entries[0]
	if entry.Question != "Do you do bridal packages?" || entry.Source != "supervisor" {
		t.Fatalf("unexpected knowledge entry: %+v", entry)
	}
	if len(entry.Tags) != 2 || entry.Tags[0] != "learned" || entry.Tags[1] != "supervisor_response" {
		t.Fatalf("unexpected tags: %v", entry.Tags)
	}

	if notifier.calls != 1 {
		t.Fatalf("expected 1 follow-up, got %d", notifier.calls)
	}
	last := bus.events[len(bus.events)-1]
	if last.kind != EventRequestResolved {
		t.Fatalf("expected request_resolved event, got %s", last.kind)
	}
	// History was resident, so the follow-up turn lands there too.
	if a.History.Len("cust1") != 3 {
		t.Fatalf("expected follow-up turn appended, got %d turns", a.History.Len("cust1"))
	}
}

func TestResolveTwiceRejected(t *testing.T) {
	a, knowledge, _, _, _ := newTestAgent(fakeCompleter{reply: "[ESCALATE] unsure"})
	res, _ := a.Answer(context.Background(), "Do you do perms?", "cust1", nil, nil)
	id := *res.HelpRequestID

	if err := a.Resolve(context.Background(), id, "Yes.", "sup1"); err != nil {
		t.Fatalf("first resolve failed: %v", err)
	}
	err := a.Resolve(context.Background(), id, "Different answer.", "sup2")
	if !errors.Is(err, models.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if len(knowledge.entries) != 1 {
		t.Fatalf("double resolution must not append knowledge, got %d entries", len(knowledge.entries))
	}
}

func TestResolveUnknownRequest(t *testing.T) {
	a, _, _, _, _ := newTestAgent(fakeCompleter{})
	err := a.Resolve(context.Background(), "missing", "x", "sup1")
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// A resolution racing an expiry transition must produce exactly one
// terminal transition.
func TestResolveRacesExpiry(t *testing.T) {
	for i := 0; i < 50; i++ {
		a, knowledge, requests, _, _ := newTestAgent(fakeCompleter{reply: "[ESCALATE] unsure"})
		res, _ := a.Answer(context.Background(), "race me", "cust1", nil, nil)
		id := *res.HelpRequestID

		var wg sync.WaitGroup
		var resolveErr, expireErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			resolveErr = a.Resolve(context.Background(), id, "answer", "sup1")
		}()
		go func() {
			defer wg.Done()
			expireErr = requests.TransitionRequest(context.Background(), id, models.StatusPending, models.RequestTransition{
				Status: models.StatusUnresolved,
			})
		}()
		wg.Wait()

		req := requests.requests[id]
		if !req.Status.Terminal() {
			t.Fatalf("expected terminal status, got %s", req.Status)
		}
		resolveWon := resolveErr == nil
		expireWon := expireErr == nil
		if resolveWon == expireWon {
			t.Fatalf("expected exactly one winner: resolve=%v expire=%v", resolveErr, expireErr)
		}
		if resolveWon && req.Status != models.StatusResolved {
			t.Fatalf("resolve won but status is %s", req.Status)
		}
		if expireWon && req.Status != models.StatusUnresolved {
			t.Fatalf("expiry won but status is %s", req.Status)
		}
		wantEntries := 0
		if resolveWon {
			wantEntries = 1
		}
		if len(knowledge.entries) != wantEntries {
			t.Fatalf("expected %d knowledge entries, got %d", wantEntries, len(knowledge.entries))
		}
	}
}

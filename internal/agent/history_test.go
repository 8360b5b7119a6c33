package agent

import (
	"fmt"
	"sync"
	"testing"

	"github.com/frontdesk/backend/internal/models"
)

func turn(text string) models.ConversationTurn {
	return models.ConversationTurn{Speaker: models.SpeakerCustomer, Text: text}
}

func TestHistoryWindow(t *testing.T) {
	h := NewHistory()
	for i := 0; i < 14; i++ {
		h.Append("cust1", turn(fmt.Sprintf("t%d", i)))
	}

	window := h.Window("cust1", 5)
	if len(window) != 10 {
		t.Fatalf("expected 10 turns, got %d", len(window))
	}
	if window[0].Text != "t4" || window[9].Text != "t13" {
		t.Fatalf("expected trailing window t4..t13, got %s..%s", window[0].Text, window[9].Text)
	}
}

func TestHistoryWindowShorterThanPairs(t *testing.T) {
	h := NewHistory()
	h.Append("cust1", turn("only"))

	window := h.Window("cust1", 3)
	if len(window) != 1 || window[0].Text != "only" {
		t.Fatalf("expected the single stored turn, got %v", window)
	}
	if got := h.Window("unknown", 3); got != nil {
		t.Fatalf("expected nil window for unknown customer, got %v", got)
	}
}

func TestHistoryClear(t *testing.T) {
	h := NewHistory()
	h.Append("cust1", turn("a"), turn("b"))
	h.Clear("cust1")
	if h.Len("cust1") != 0 {
		t.Fatalf("expected empty history after clear")
	}
	if h.AppendIfPresent("cust1", turn("late")) {
		t.Fatalf("AppendIfPresent must not recreate cleared history")
	}
}

func TestHistoryConcurrentAppends(t *testing.T) {
	h := NewHistory()
	const goroutines = 8
	const perGoroutine = 50

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			customer := fmt.Sprintf("cust%d", g%2)
			for i := 0; i < perGoroutine; i++ {
				h.Append(customer, turn("x"))
			}
		}(g)
	}
	wg.Wait()

	total := h.Len("cust0") + h.Len("cust1")
	if total != goroutines*perGoroutine {
		t.Fatalf("lost appends: expected %d, got %d", goroutines*perGoroutine, total)
	}
}

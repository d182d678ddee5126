package session

import (
	"testing"
	"time"

	"github.com/danghm/tellerbot/internal/intent"
)

func TestAppendHistoryBoundsWindow(t *testing.T) {
	s := NewStore(time.Hour, 2)
	for i := 0; i < 6; i++ {
		s.AppendHistory("s1", Turn{Role: RoleUser, Text: "q"})
		s.AppendHistory("s1", Turn{Role: RoleAssistant, Text: "a"})
	}
	h := s.History("s1")
	if len(h) != 4 {
		t.Fatalf("history length = %d, want 4", len(h))
	}
	if h[0].Role != RoleUser || h[3].Role != RoleAssistant {
		t.Fatalf("unexpected window contents: %+v", h)
	}
}

func TestHistoryDropsOldestFirst(t *testing.T) {
	s := NewStore(time.Hour, 1)
	s.AppendHistory("s1", Turn{Role: RoleUser, Text: "first"})
	s.AppendHistory("s1", Turn{Role: RoleAssistant, Text: "second"})
	s.AppendHistory("s1", Turn{Role: RoleUser, Text: "third"})

	h := s.History("s1")
	if len(h) != 2 {
		t.Fatalf("history length = %d, want 2", len(h))
	}
	if h[0].Text != "second" || h[1].Text != "third" {
		t.Fatalf("window = %+v, want oldest dropped", h)
	}
}

func TestStateStickyAcrossReads(t *testing.T) {
	s := NewStore(time.Hour, 5)
	want := intent.Intent{Domain: intent.DomainLoan, LoanType: intent.LoanHousing}
	s.SaveState("s1", want)

	got, ok := s.State("s1")
	if !ok {
		t.Fatalf("State() reported no state after SaveState")
	}
	if got.Domain != want.Domain || got.LoanType != want.LoanType {
		t.Fatalf("State() = %+v, want %+v", got, want)
	}
}

func TestExpiredSessionReadsAsEmpty(t *testing.T) {
	s := NewStore(10*time.Millisecond, 5)
	s.AppendHistory("s1", Turn{Role: RoleUser, Text: "q"})
	s.SaveState("s1", intent.Intent{Domain: intent.DomainSavings})

	time.Sleep(25 * time.Millisecond)

	if h := s.History("s1"); h != nil {
		t.Fatalf("History() = %+v after expiry, want nil", h)
	}
	if _, ok := s.State("s1"); ok {
		t.Fatalf("State() survived expiry")
	}
}

func TestMissingSessionIsSilent(t *testing.T) {
	s := NewStore(time.Hour, 5)
	if h := s.History("nope"); h != nil {
		t.Fatalf("History() = %+v for unknown session, want nil", h)
	}
	if _, ok := s.State("nope"); ok {
		t.Fatalf("State() reported state for unknown session")
	}
}

func TestSweepEvictsAndFiresHook(t *testing.T) {
	s := NewStore(5*time.Millisecond, 5)
	var evicted []string
	s.SetEvictHook(func(id string) { evicted = append(evicted, id) })

	s.AppendHistory("s1", Turn{Role: RoleUser, Text: "q"})
	time.Sleep(15 * time.Millisecond)
	s.sweep()

	if len(evicted) != 1 || evicted[0] != "s1" {
		t.Fatalf("evicted = %v, want [s1]", evicted)
	}
	if s.Len() != 0 {
		t.Fatalf("Len() = %d after sweep, want 0", s.Len())
	}
}

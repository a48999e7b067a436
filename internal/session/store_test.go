package session

import (
	"strings"
	"testing"

	"github.com/zinin/homeops-bot/internal/wizard"
)

func TestStore_WizardSlots(t *testing.T) {
	s := New()

	if _, ok := s.Wizard(1); ok {
		t.Fatal("expected no wizard")
	}

	st := &wizard.State{Kind: "fw_redirect"}
	s.PutWizard(1, st)

	got, ok := s.Wizard(1)
	if !ok || got != st {
		t.Fatalf("Wizard(1) = %v, %v", got, ok)
	}
	if _, ok := s.Wizard(2); ok {
		t.Error("identities must be isolated")
	}

	s.ClearWizard(1)
	if _, ok := s.Wizard(1); ok {
		t.Error("wizard should be cleared")
	}
}

func TestStore_FlagsIndependentOfWizard(t *testing.T) {
	s := New()

	s.SetAIMode(1, true)
	s.SetMailbox(1, "abc@1secmail.com")
	s.PutWizard(1, &wizard.State{Kind: "x"})
	s.ClearWizard(1)

	if !s.AIMode(1) {
		t.Error("clearing the wizard must not touch AI mode")
	}
	if s.Mailbox(1) != "abc@1secmail.com" {
		t.Errorf("Mailbox = %q", s.Mailbox(1))
	}
	if s.AIMode(2) || s.Mailbox(2) != "" {
		t.Error("unknown identity must have zero flags")
	}
}

func TestStore_SetAIModeOffResetsConversation(t *testing.T) {
	s := New()
	s.SetAIMode(1, true)
	s.AppendAIHistory(1, Turn{Role: "user", Text: "hi"})
	s.SetLogContext(1, LogClash)

	s.SetAIMode(1, false)

	if len(s.AIHistory(1)) != 0 {
		t.Error("history should be cleared")
	}
	if s.LogContext(1) != LogNone {
		t.Error("log context should be cleared")
	}
}

func TestStore_AIHistoryBounded(t *testing.T) {
	s := New()
	chunk := strings.Repeat("x", 6000)
	for i := 0; i < 5; i++ {
		s.AppendAIHistory(1, Turn{Role: "user", Text: chunk})
	}

	h := s.AIHistory(1)
	total := 0
	for _, turn := range h {
		total += len(turn.Text)
	}
	if total > MaxAIHistory {
		t.Errorf("history holds %d chars, limit %d", total, MaxAIHistory)
	}
	if len(h) != 3 {
		t.Errorf("len(history) = %d, want 3", len(h))
	}
}

func TestStore_AIHistoryKeepsLatestOversizedTurn(t *testing.T) {
	s := New()
	s.AppendAIHistory(1, Turn{Role: "user", Text: strings.Repeat("y", MaxAIHistory+10)})

	if len(s.AIHistory(1)) != 1 {
		t.Error("a single oversized turn must be kept")
	}
}

package convo

import (
	"testing"

	"github.com/voicebridge/voicebridge/pkg/chat"
)

func TestNewConversation(t *testing.T) {
	c := New("You are a helpful voice assistant.")

	if c.Len() != 1 {
		t.Fatalf("Expected 1 turn, got %d", c.Len())
	}
	if c.System() != "You are a helpful voice assistant." {
		t.Errorf("Unexpected system text: %s", c.System())
	}
	if c.Messages()[0].Role != chat.RoleSystem {
		t.Errorf("Expected system role first, got %s", c.Messages()[0].Role)
	}
}

func TestAlternatingTurns(t *testing.T) {
	c := New("persona")

	// N successful exchanges produce 1 + 2N turns in causal order
	exchanges := []struct{ user, assistant string }{
		{"hello", "hi there"},
		{"what's the weather", "sunny"},
		{"thanks", "anytime"},
	}
	for _, e := range exchanges {
		c.AddUser(e.user)
		c.AddAssistant(e.assistant)
	}

	if c.Len() != 1+2*len(exchanges) {
		t.Fatalf("Expected %d turns, got %d", 1+2*len(exchanges), c.Len())
	}

	msgs := c.Messages()
	for i, e := range exchanges {
		u := msgs[1+2*i]
		a := msgs[2+2*i]
		if u.Role != chat.RoleUser || u.Content != e.user {
			t.Errorf("Turn %d: expected user %q, got %s %q", 1+2*i, e.user, u.Role, u.Content)
		}
		if a.Role != chat.RoleAssistant || a.Content != e.assistant {
			t.Errorf("Turn %d: expected assistant %q, got %s %q", 2+2*i, e.assistant, a.Role, a.Content)
		}
	}
}

func TestMessagesReturnsCopy(t *testing.T) {
	c := New("persona")
	c.AddUser("one")

	msgs := c.Messages()
	msgs[0].Content = "mutated"

	if c.System() != "persona" {
		t.Error("Mutating the snapshot changed the conversation")
	}
}

func TestMarkRollback(t *testing.T) {
	c := New("persona")
	c.AddUser("kept")
	c.AddAssistant("also kept")

	mark := c.Mark()
	c.AddUser("rolled back")

	c.Rollback(mark)
	if c.Len() != 3 {
		t.Fatalf("Expected 3 turns after rollback, got %d", c.Len())
	}
	if c.Last().Content != "also kept" {
		t.Errorf("Unexpected last turn: %q", c.Last().Content)
	}
}

func TestRollbackNeverRemovesSystemTurn(t *testing.T) {
	c := New("persona")
	c.AddUser("hello")

	c.Rollback(0)
	if c.Len() != 1 {
		t.Fatalf("Expected 1 turn, got %d", c.Len())
	}
	if c.Messages()[0].Role != chat.RoleSystem {
		t.Error("System turn was removed by rollback")
	}
}

package policy

import (
	"testing"

	"github.com/NovaClaw/NovaClaw/internal/state"
)

func TestMentionRepliesToNameDrop(t *testing.T) {
	persona := state.Persona{Name: "Nova", Greeting: "Hey there, Nova here."}
	recent := []state.Message{
		{Sender: "alice", Content: "anyone around?"},
		{Sender: "bob", Content: "hey nova, you there?"},
	}

	reply, ok := Mention{}.Decide(persona, recent)
	if !ok {
		t.Fatalf("expected a reply to a name mention")
	}
	if reply != "Hey there, Nova here." {
		t.Fatalf("unexpected reply %q", reply)
	}
}

func TestMentionStaysSilentWithoutMention(t *testing.T) {
	persona := state.Persona{Name: "Nova"}
	recent := []state.Message{{Sender: "alice", Content: "lunch at noon?"}}

	if _, ok := (Mention{}).Decide(persona, recent); ok {
		t.Fatalf("replied without being mentioned")
	}
}

func TestMentionIgnoresOwnMessages(t *testing.T) {
	persona := state.Persona{Name: "Nova"}
	recent := []state.Message{{Sender: "Nova", Content: "nova signing on", FromAgent: true}}

	if _, ok := (Mention{}).Decide(persona, recent); ok {
		t.Fatalf("replied to the agent's own message")
	}
}

func TestNoopNeverReplies(t *testing.T) {
	if _, ok := (Noop{}).Decide(state.Persona{Name: "Nova"}, []state.Message{{Content: "nova!"}}); ok {
		t.Fatalf("noop engine produced a reply")
	}
}

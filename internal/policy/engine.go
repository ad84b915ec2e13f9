// Package policy holds the auto-reply decision seam. The runtime treats
// the engine as opaque: it sees the persona and the group's recent
// messages and may or may not produce a reply. Swap in any
// implementation; the bundled ones are deliberately simple.
package policy

import (
	"strings"

	"github.com/NovaClaw/NovaClaw/internal/state"
)

// Engine decides whether the persona replies to the latest message in a
// group, and with what text. ok=false means stay silent.
type Engine interface {
	Decide(persona state.Persona, recent []state.Message) (reply string, ok bool)
}

// Noop never replies. Used when auto-reply is disabled.
type Noop struct{}

func (Noop) Decide(state.Persona, []state.Message) (string, bool) {
	return "", false
}

// Mention replies with the persona greeting when the newest inbound
// message mentions the persona by name.
type Mention struct{}

func (Mention) Decide(persona state.Persona, recent []state.Message) (string, bool) {
	if len(recent) == 0 || persona.Name == "" {
		return "", false
	}
	last := recent[len(recent)-1]
	if last.FromAgent {
		return "", false
	}
	if !strings.Contains(strings.ToLower(last.Content), strings.ToLower(persona.Name)) {
		return "", false
	}
	greeting := persona.Greeting
	if greeting == "" {
		greeting = "Hi, I'm " + persona.Name + "!"
	}
	return greeting, true
}

// Package state owns the agent's conversational state: the persona, the
// set of joined WhatsApp groups, the append-only message log, and the
// connectivity status. Everything else in the gateway reads and writes
// through the Store contract; no package holds mutable references to
// state entities across concurrent operations.
package state

import (
	"fmt"
	"time"
)

// Tone is the persona's voice. Only the four enumerated values are valid.
type Tone string

const (
	ToneFriendly     Tone = "friendly"
	ToneProfessional Tone = "professional"
	ToneEnthusiastic Tone = "enthusiastic"
	ToneAnalytical   Tone = "analytical"
)

// Valid reports whether t is one of the allowed tones.
func (t Tone) Valid() bool {
	switch t {
	case ToneFriendly, ToneProfessional, ToneEnthusiastic, ToneAnalytical:
		return true
	}
	return false
}

// Persona is the singleton agent identity. It is only mutated through
// partial updates; there is no persona history.
type Persona struct {
	Name      string `json:"name"`
	Bio       string `json:"bio"`
	Tone      Tone   `json:"tone"`
	Objective string `json:"objective"`
	Greeting  string `json:"greeting"`
}

// PersonaPatch is a partial persona update. Empty fields keep their
// current value.
type PersonaPatch struct {
	Name      string `json:"name,omitempty"`
	Bio       string `json:"bio,omitempty"`
	Tone      Tone   `json:"tone,omitempty"`
	Objective string `json:"objective,omitempty"`
	Greeting  string `json:"greeting,omitempty"`
}

// DefaultPersona returns the stock persona used until the dashboard
// configures one.
func DefaultPersona(name string) Persona {
	if name == "" {
		name = "Nova"
	}
	return Persona{
		Name:      name,
		Bio:       "A helpful group companion.",
		Tone:      ToneFriendly,
		Objective: "Keep group conversations moving.",
		Greeting:  fmt.Sprintf("Hi, I'm %s!", name),
	}
}

// Group is a WhatsApp group the agent has registered. JoinedAt is fixed
// at first registration; later registrations may only update name and
// description.
type Group struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// Message is one entry in the append-only log. IDs are unique and
// monotonically creation-ordered for the lifetime of the store.
type Message struct {
	ID        string    `json:"id"`
	GroupID   string    `json:"groupId"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	FromAgent bool      `json:"fromAgent"`
}

// Status tracks connectivity. Connected mirrors the outcome of the last
// Messaging Client call; the timestamps only ever move forward.
type Status struct {
	Connected    bool       `json:"connected"`
	LastInbound  *time.Time `json:"lastInbound,omitempty"`
	LastOutbound *time.Time `json:"lastOutbound,omitempty"`
}

// AgentState is a consistent point-in-time snapshot of the whole store.
type AgentState struct {
	Persona  Persona   `json:"persona"`
	Groups   []Group   `json:"groups"`
	Messages []Message `json:"messages"`
	Status   Status    `json:"status"`
}

// Store is the mutator contract for the conversation state. Every call
// is atomic with respect to the invariants above: mutators never
// observably interleave, and GetState never returns a torn snapshot.
type Store interface {
	// GetState returns a snapshot in which all four entity kinds
	// reflect the same logical instant.
	GetState() AgentState

	// UpdatePersona merges the non-empty patch fields into the
	// persona. A patch carrying an invalid tone fails with a
	// *ValidationError and mutates nothing.
	UpdatePersona(patch PersonaPatch) (Persona, error)

	// AddGroup registers a group, or updates name/description of an
	// existing one. JoinedAt is set only on first registration. An
	// empty name defaults to the id. Never fails.
	AddGroup(id, name, description string) Group

	// LogMessage appends a message with a fresh id and the current
	// time, and advances lastInbound or lastOutbound. Fails with a
	// *NotFoundError, mutating nothing, when the group is unknown.
	LogMessage(groupID, sender, content string, fromAgent bool) (Message, error)

	// SetConnected records the outcome of the latest external call.
	SetConnected(connected bool)
}

// ValidationError reports bad caller input. The store is unchanged.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports a reference to an entity the store does not hold.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

package state

import (
	"fmt"
	"sync"
	"time"
)

// MemoryStore is the in-process Store implementation. A single mutex is
// the store's critical section; contention is low and correctness beats
// throughput here, so the locking is deliberately coarse.
type MemoryStore struct {
	mu         sync.Mutex
	persona    Persona
	groups     []Group
	groupIndex map[string]int
	messages   []Message
	status     Status
	seq        uint64

	now func() time.Time // test seam
}

// NewMemoryStore creates a store seeded with the given persona.
func NewMemoryStore(persona Persona) *MemoryStore {
	return &MemoryStore{
		persona:    persona,
		groupIndex: make(map[string]int),
		now:        time.Now,
	}
}

// GetState returns a copy of the full state taken under the store lock.
func (s *MemoryStore) GetState() AgentState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := AgentState{
		Persona:  s.persona,
		Groups:   make([]Group, len(s.groups)),
		Messages: make([]Message, len(s.messages)),
		Status:   s.status,
	}
	copy(st.Groups, s.groups)
	copy(st.Messages, s.messages)
	if s.status.LastInbound != nil {
		t := *s.status.LastInbound
		st.Status.LastInbound = &t
	}
	if s.status.LastOutbound != nil {
		t := *s.status.LastOutbound
		st.Status.LastOutbound = &t
	}
	return st
}

// UpdatePersona merges non-empty patch fields into the persona.
func (s *MemoryStore) UpdatePersona(patch PersonaPatch) (Persona, error) {
	if patch.Tone != "" && !patch.Tone.Valid() {
		return Persona{}, &ValidationError{Field: "tone", Reason: fmt.Sprintf("%q is not one of friendly, professional, enthusiastic, analytical", patch.Tone)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	applyPersonaPatch(&s.persona, patch)
	return s.persona, nil
}

func applyPersonaPatch(p *Persona, patch PersonaPatch) {
	if patch.Name != "" {
		p.Name = patch.Name
	}
	if patch.Bio != "" {
		p.Bio = patch.Bio
	}
	if patch.Tone != "" {
		p.Tone = patch.Tone
	}
	if patch.Objective != "" {
		p.Objective = patch.Objective
	}
	if patch.Greeting != "" {
		p.Greeting = patch.Greeting
	}
}

// AddGroup registers a group once per id; re-registration is a no-op for
// identity and joinedAt but updates name/description last-write-wins.
func (s *MemoryStore) AddGroup(id, name, description string) Group {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, ok := s.groupIndex[id]; ok {
		if name != "" {
			s.groups[idx].Name = name
		}
		if description != "" {
			s.groups[idx].Description = description
		}
		return s.groups[idx]
	}

	if name == "" {
		name = id
	}
	g := Group{
		ID:          id,
		Name:        name,
		Description: description,
		JoinedAt:    s.now(),
	}
	s.groupIndex[id] = len(s.groups)
	s.groups = append(s.groups, g)
	return g
}

// LogMessage appends a message for an existing group. The existence
// check, the append, and the status update share one critical section so
// a message can never commit against a group that is not yet committed.
func (s *MemoryStore) LogMessage(groupID, sender, content string, fromAgent bool) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groupIndex[groupID]; !ok {
		return Message{}, &NotFoundError{Kind: "group", ID: groupID}
	}

	s.seq++
	m := Message{
		ID:        fmt.Sprintf("msg-%d", s.seq),
		GroupID:   groupID,
		Sender:    sender,
		Content:   content,
		Timestamp: s.now(),
		FromAgent: fromAgent,
	}
	s.messages = append(s.messages, m)
	s.advanceStatus(m.Timestamp, fromAgent)
	return m, nil
}

// advanceStatus moves lastInbound/lastOutbound forward, never backward.
// Callers must hold s.mu.
func (s *MemoryStore) advanceStatus(ts time.Time, fromAgent bool) {
	target := &s.status.LastInbound
	if fromAgent {
		target = &s.status.LastOutbound
	}
	if *target == nil || ts.After(**target) {
		t := ts
		*target = &t
	}
}

// SetConnected records the outcome of the latest external call.
func (s *MemoryStore) SetConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Connected = connected
}

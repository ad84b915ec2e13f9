// Package agent implements the runtime that turns webhook deliveries and
// dashboard commands into conversation-store mutations and outbound
// sends. All triggers funnel through the same store and messenger seams,
// so every operation observes one consistent view of state.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/NovaClaw/NovaClaw/internal/policy"
	"github.com/NovaClaw/NovaClaw/internal/state"
	"github.com/NovaClaw/NovaClaw/internal/whatsapp"
)

// Messenger is the outbound seam to the WhatsApp Graph API.
type Messenger interface {
	JoinGroup(ctx context.Context, inviteCode, name, description string) (*whatsapp.GroupHandle, error)
	SendMessage(ctx context.Context, groupID, content string) (*whatsapp.SendReceipt, error)
}

// EventPublisher mirrors committed messages to an external audit stream.
// Implementations must be fire-and-forget; the runtime never waits on or
// reacts to publish outcomes.
type EventPublisher interface {
	PublishMessage(msg state.Message)
}

// Options configures a Runtime.
type Options struct {
	Store     state.Store
	Messenger Messenger
	Policy    policy.Engine
	Stream    EventPublisher

	// AgentName is the sender recorded on manual and simulated sends.
	AgentName string
	// SendTimeout bounds each external call. Defaults to 30s.
	SendTimeout time.Duration
	// RecentWindow is how many trailing group messages the policy sees.
	// Defaults to 20.
	RecentWindow int
}

// Runtime orchestrates inbound events, manual sends, and join requests
// over the shared store. Safe for concurrent use; the store provides the
// only critical section, and external calls never run inside it.
type Runtime struct {
	store        state.Store
	messenger    Messenger
	policy       policy.Engine
	stream       EventPublisher
	agentName    string
	sendTimeout  time.Duration
	recentWindow int
}

// New creates a Runtime.
func New(opts Options) *Runtime {
	r := &Runtime{
		store:        opts.Store,
		messenger:    opts.Messenger,
		policy:       opts.Policy,
		stream:       opts.Stream,
		agentName:    opts.AgentName,
		sendTimeout:  opts.SendTimeout,
		recentWindow: opts.RecentWindow,
	}
	if r.policy == nil {
		r.policy = policy.Noop{}
	}
	if r.agentName == "" {
		r.agentName = "Nova"
	}
	if r.sendTimeout <= 0 {
		r.sendTimeout = 30 * time.Second
	}
	if r.recentWindow <= 0 {
		r.recentWindow = 20
	}
	return r
}

// HandleManualSend delivers a dashboard-issued message: external send
// first, then the store append, then status. The send runs outside any
// store lock and is bounded by the runtime's send timeout. An APIError
// marks the agent disconnected and surfaces to the caller.
func (r *Runtime) HandleManualSend(ctx context.Context, groupID, content string) (state.Message, error) {
	if !r.groupTracked(groupID) {
		return state.Message{}, &state.NotFoundError{Kind: "group", ID: groupID}
	}
	if err := ctx.Err(); err != nil {
		return state.Message{}, fmt.Errorf("manual send canceled: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, r.sendTimeout)
	defer cancel()
	receipt, err := r.messenger.SendMessage(sendCtx, groupID, content)
	if err != nil {
		r.store.SetConnected(false)
		slog.Warn("Manual send failed", "group_id", groupID, "error", err)
		return state.Message{}, fmt.Errorf("send to group %s: %w", groupID, err)
	}
	r.store.SetConnected(true)

	msg, err := r.store.LogMessage(groupID, r.agentName, content, true)
	if err != nil {
		// The send already happened; the log failure is reported but
		// cannot be rolled back.
		slog.Warn("Outbound message not logged", "group_id", groupID, "error", err)
		return state.Message{}, err
	}
	slog.Info("Manual send delivered", "group_id", groupID, "message_id", msg.ID, "wa_message_id", receipt.MessageID)
	r.publish(msg)
	return msg, nil
}

// SimulateSend logs an agent message without touching the Messaging
// Client. Dashboard dry runs use this path.
func (r *Runtime) SimulateSend(groupID, content string) (state.Message, error) {
	msg, err := r.store.LogMessage(groupID, r.agentName, content, true)
	if err != nil {
		return state.Message{}, err
	}
	slog.Info("Simulated send logged", "group_id", groupID, "message_id", msg.ID)
	r.publish(msg)
	return msg, nil
}

// JoinRequest is one of DryRunJoin, LiveJoin, or DirectRegister.
type JoinRequest interface {
	joinRequest()
}

// DryRunJoin registers a draft group locally without any external call.
type DryRunJoin struct {
	ID          string
	Name        string
	Description string
}

// LiveJoin redeems an invite through the Messaging Client, then
// registers the resolved group.
type LiveJoin struct {
	InviteCode  string
	Name        string
	Description string
}

// DirectRegister tracks a group that was joined out-of-band.
type DirectRegister struct {
	GroupID     string
	Name        string
	Description string
}

func (DryRunJoin) joinRequest()     {}
func (LiveJoin) joinRequest()       {}
func (DirectRegister) joinRequest() {}

// HandleGroupJoin registers a group per the request variant. Group
// registration is idempotent by id, so re-joining an already-tracked
// group reconciles instead of duplicating.
func (r *Runtime) HandleGroupJoin(ctx context.Context, req JoinRequest) (state.Group, error) {
	switch req := req.(type) {
	case DryRunJoin:
		name := req.Name
		if name == "" {
			name = "Draft Group"
		}
		g := r.store.AddGroup(req.ID, name, req.Description)
		slog.Info("Draft group registered", "group_id", g.ID, "name", g.Name)
		return g, nil

	case LiveJoin:
		if err := ctx.Err(); err != nil {
			return state.Group{}, fmt.Errorf("join canceled: %w", err)
		}
		joinCtx, cancel := context.WithTimeout(ctx, r.sendTimeout)
		defer cancel()
		handle, err := r.messenger.JoinGroup(joinCtx, req.InviteCode, req.Name, req.Description)
		if err != nil {
			r.store.SetConnected(false)
			slog.Warn("Group join failed", "error", err)
			return state.Group{}, fmt.Errorf("join group: %w", err)
		}
		r.store.SetConnected(true)
		name := req.Name
		if name == "" {
			name = handle.Name
		}
		g := r.store.AddGroup(handle.ID, name, req.Description)
		slog.Info("Group joined", "group_id", g.ID, "name", g.Name)
		return g, nil

	case DirectRegister:
		g := r.store.AddGroup(req.GroupID, req.Name, req.Description)
		slog.Info("Group registered", "group_id", g.ID, "name", g.Name)
		return g, nil

	default:
		return state.Group{}, fmt.Errorf("unsupported join request %T", req)
	}
}

// IsNotFound reports whether err is a store not-found failure.
func IsNotFound(err error) bool {
	var nf *state.NotFoundError
	return errors.As(err, &nf)
}

func (r *Runtime) groupTracked(groupID string) bool {
	for _, g := range r.store.GetState().Groups {
		if g.ID == groupID {
			return true
		}
	}
	return false
}

// recentMessages returns the trailing window of a group's messages from
// the given snapshot.
func (r *Runtime) recentMessages(st state.AgentState, groupID string) []state.Message {
	var recent []state.Message
	for _, m := range st.Messages {
		if m.GroupID == groupID {
			recent = append(recent, m)
		}
	}
	if len(recent) > r.recentWindow {
		recent = recent[len(recent)-r.recentWindow:]
	}
	return recent
}

func (r *Runtime) publish(msg state.Message) {
	if r.stream == nil {
		return
	}
	r.stream.PublishMessage(msg)
}

package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// webhookPayload is the Graph-style delivery envelope. Only text
// messages carrying a group reference are of interest; everything else
// normalizes away.
type webhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Value struct {
				Contacts []struct {
					WaID    string `json:"wa_id"`
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts"`
				Messages []struct {
					From      string `json:"from"`
					ID        string `json:"id"`
					GroupID   string `json:"group_id"`
					Timestamp string `json:"timestamp"`
					Type      string `json:"type"`
					Text      struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// inboundEvent is the normalized shape of one deliverable message.
type inboundEvent struct {
	GroupID   string
	Sender    string
	Text      string
	Timestamp time.Time
}

// normalizeInbound extracts text messages with a group reference from a
// raw webhook body. Malformed payloads and unsupported message types
// yield no events; the caller treats that as Ignored, not an error.
func normalizeInbound(payload []byte) []inboundEvent {
	var p webhookPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		slog.Debug("Webhook payload not parseable", "error", err)
		return nil
	}

	var events []inboundEvent
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			names := make(map[string]string, len(change.Value.Contacts))
			for _, c := range change.Value.Contacts {
				if c.Profile.Name != "" {
					names[c.WaID] = c.Profile.Name
				}
			}
			for _, m := range change.Value.Messages {
				if m.Type != "text" || m.Text.Body == "" || m.GroupID == "" {
					slog.Debug("Ignoring unsupported inbound message", "type", m.Type, "group_id", m.GroupID)
					continue
				}
				sender := m.From
				if name, ok := names[m.From]; ok {
					sender = name
				}
				ts := time.Now()
				if unix, err := strconv.ParseInt(m.Timestamp, 10, 64); err == nil && unix > 0 {
					ts = time.Unix(unix, 0)
				}
				events = append(events, inboundEvent{
					GroupID:   m.GroupID,
					Sender:    sender,
					Text:      m.Text.Body,
					Timestamp: ts,
				})
			}
		}
	}
	return events
}

// HandleInboundEvent processes one webhook delivery. It never returns an
// error: malformed payloads and events for untracked groups are ignored,
// and a failed auto-reply send is logged without blocking the webhook
// acknowledgment.
func (r *Runtime) HandleInboundEvent(ctx context.Context, payload []byte) {
	for _, ev := range normalizeInbound(payload) {
		r.handleInbound(ctx, ev)
	}
}

func (r *Runtime) handleInbound(ctx context.Context, ev inboundEvent) {
	traceID := uuid.NewString()

	if !r.groupTracked(ev.GroupID) {
		slog.Debug("Inbound event for untracked group ignored", "trace_id", traceID, "group_id", ev.GroupID)
		return
	}

	msg, err := r.store.LogMessage(ev.GroupID, ev.Sender, ev.Text, false)
	if err != nil {
		// The source system may redeliver; never retry here.
		slog.Warn("Inbound message dropped", "trace_id", traceID, "group_id", ev.GroupID, "error", err)
		return
	}
	slog.Info("Inbound message logged", "trace_id", traceID, "group_id", ev.GroupID, "message_id", msg.ID)
	r.publish(msg)

	st := r.store.GetState()
	reply, ok := r.policy.Decide(st.Persona, r.recentMessages(st, ev.GroupID))
	if !ok || reply == "" {
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, r.sendTimeout)
	defer cancel()
	receipt, err := r.messenger.SendMessage(sendCtx, ev.GroupID, reply)
	if err != nil {
		// Logged only: the webhook must still ack to avoid redelivery
		// storms while the downstream API is unhealthy.
		r.store.SetConnected(false)
		slog.Error("Auto-reply send failed", "trace_id", traceID, "group_id", ev.GroupID, "error", err)
		return
	}
	r.store.SetConnected(true)

	out, err := r.store.LogMessage(ev.GroupID, st.Persona.Name, reply, true)
	if err != nil {
		slog.Warn("Auto-reply not logged", "trace_id", traceID, "group_id", ev.GroupID, "error", err)
		return
	}
	slog.Info("Auto-reply delivered", "trace_id", traceID, "group_id", ev.GroupID, "message_id", out.ID, "wa_message_id", receipt.MessageID)
	r.publish(out)
}

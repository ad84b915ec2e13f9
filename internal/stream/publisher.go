// Package stream mirrors committed conversation messages to a Kafka
// topic so external consumers (audit, analytics) can follow the agent
// without polling the dashboard API. Publishing is strictly best-effort:
// a broker outage never affects the store or an HTTP response.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/NovaClaw/NovaClaw/internal/state"
)

// MessageEvent is the wire shape of one mirrored message.
type MessageEvent struct {
	EventID   string    `json:"event_id"`
	Direction string    `json:"direction"`
	MessageID string    `json:"message_id"`
	GroupID   string    `json:"group_id"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	FromAgent bool      `json:"from_agent"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessageEvent builds the event for a committed message.
func NewMessageEvent(msg state.Message) MessageEvent {
	direction := "inbound"
	if msg.FromAgent {
		direction = "outbound"
	}
	return MessageEvent{
		EventID:   uuid.NewString(),
		Direction: direction,
		MessageID: msg.ID,
		GroupID:   msg.GroupID,
		Sender:    msg.Sender,
		Content:   msg.Content,
		FromAgent: msg.FromAgent,
		Timestamp: msg.Timestamp,
	}
}

// Publisher writes message events to one Kafka topic.
type Publisher struct {
	writer  *kafka.Writer
	timeout time.Duration
}

// NewPublisher creates a publisher for a comma-separated broker list.
func NewPublisher(brokers, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(strings.Split(brokers, ",")...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
		},
		timeout: 10 * time.Second,
	}
}

// PublishMessage fires the event for msg in the background. Failures are
// logged and dropped.
func (p *Publisher) PublishMessage(msg state.Message) {
	event := NewMessageEvent(msg)
	go func() {
		data, err := json.Marshal(event)
		if err != nil {
			slog.Warn("Stream event marshal failed", "message_id", event.MessageID, "error", err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		if err := p.writer.WriteMessages(ctx, kafka.Message{
			Key:   []byte(event.GroupID),
			Value: data,
		}); err != nil {
			slog.Warn("Stream publish failed", "message_id", event.MessageID, "error", err)
		}
	}()
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

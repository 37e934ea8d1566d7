package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/helpdesk-micro/tracker-service/internal/logger"
	"github.com/helpdesk-micro/tracker-service/internal/model"
	"github.com/segmentio/kafka-go"
)

// Ticket lifecycle events.
const (
	EventTicketCreated    = "ticket.created"
	EventTicketUpdated    = "ticket.updated"
	EventTicketClassified = "ticket.classified"
)

// TicketEventProducer lets handlers and jobs emit events without knowing
// about kafka; tests substitute a recorder.
type TicketEventProducer interface {
	ProduceTicketEvent(ctx context.Context, event string, payload map[string]interface{})
}

// Producer writes ticket events to a kafka topic, best-effort: failures are
// logged and never surface to the request path.
type Producer struct {
	writer *kafka.Writer
	topic  string
	log    *logger.Logger
}

// NewProducer returns a producer. With no brokers or topic configured every
// method is a no-op, which keeps local development kafka-free.
func NewProducer(brokers []string, topic string, log *logger.Logger) *Producer {
	p := &Producer{log: log.With("component", "kafka")}
	if len(brokers) == 0 || topic == "" {
		return p
	}
	p.topic = topic
	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
	}
	return p
}

func (p *Producer) ProduceTicketEvent(ctx context.Context, event string, payload map[string]interface{}) {
	if p.writer == nil {
		return
	}
	msg := map[string]interface{}{"event": event}
	for k, v := range payload {
		msg[k] = v
	}
	body, err := json.Marshal(msg)
	if err != nil {
		p.log.Error("marshal ticket event", "event", event, "error", err)
		return
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Value: body}); err != nil {
		p.log.Warn("write ticket event", "event", event, "error", err)
	}
}

// ProduceTicketEventAsync emits in a goroutine with its own timeout so the
// HTTP response is never blocked on a broker.
func (p *Producer) ProduceTicketEventAsync(event string, payload map[string]interface{}) {
	if p.writer == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		p.ProduceTicketEvent(ctx, event, payload)
	}()
}

// TicketPayload builds the standard event payload for a ticket.
func TicketPayload(t *model.Ticket) map[string]interface{} {
	payload := map[string]interface{}{
		"ticket_id": t.ID,
		"subject":   t.Subject,
		"status":    string(t.Status),
	}
	if t.Category != nil {
		payload["category"] = *t.Category
	}
	return payload
}

func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

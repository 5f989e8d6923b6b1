package events

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/JoshPattman/resumestudio/graph"
	"github.com/streadway/amqp"
)

// Publisher is the part of an AMQP channel used by AMQPPublisher.
type Publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPPublisher publishes every event to a topic exchange with the routing
// key thread.<id>.
type AMQPPublisher struct {
	mu       sync.Mutex
	ch       Publisher
	exchange string
	logger   *slog.Logger
	close    func() error
}

// DialAMQP connects to url and declares exchange as a durable topic exchange.
func DialAMQP(url, exchange string, logger *slog.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	p := NewAMQPPublisher(ch, exchange, logger)
	p.close = conn.Close
	return p, nil
}

func NewAMQPPublisher(ch Publisher, exchange string, logger *slog.Logger) *AMQPPublisher {
	return &AMQPPublisher{ch: ch, exchange: exchange, logger: logger}
}

// Observe implements graph.Observer. Publish failures are logged.
func (p *AMQPPublisher) Observe(e graph.Event) {
	body, err := encode(e)
	if err != nil {
		p.logger.Error("Failed to encode event", "err", err)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.Publish(p.exchange, RoutingKey(e.ThreadID), false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   e.Time,
		Type:        string(e.Type),
		Body:        body,
	})
	if err != nil {
		p.logger.Warn("Failed to publish event", "exchange", p.exchange, "type", e.Type, "err", err)
	}
}

func (p *AMQPPublisher) Close() error {
	if p.close == nil {
		return nil
	}
	return p.close()
}

func RoutingKey(threadID string) string {
	return fmt.Sprintf("thread.%s", threadID)
}

package bus

import (
	"context"
	"fmt"
	"sync"

	"alpatrade/internal/dto"
	"alpatrade/pkg/logger"
)

const defaultQueueSize = 128

// Bus routes typed messages between agents and keeps an audit trail of
// everything published. Implementations must deliver messages to a recipient
// in publish order.
type Bus interface {
	Publish(ctx context.Context, msg dto.Message) error
	Subscribe(agent string) <-chan dto.Message
	History(filter HistoryFilter) []dto.Message
	Close()
}

// HistoryFilter narrows the audit trail query. Zero values match everything.
type HistoryFilter struct {
	From string
	To   string
	Type dto.MessageType
}

// InMemoryBus is a channel-backed Bus for single-process deployments. A
// durable-queue adapter can replace it without touching the agents.
type InMemoryBus struct {
	log    *logger.Logger
	mu     sync.RWMutex
	queues map[string]chan dto.Message
	audit  []dto.Message
	closed bool
}

func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return &InMemoryBus{
		log:    log,
		queues: make(map[string]chan dto.Message),
	}
}

// Publish appends the message to the audit trail and delivers it to the
// recipient's queue. Publishing blocks when the recipient queue is full so
// backpressure propagates to the producer.
func (b *InMemoryBus) Publish(ctx context.Context, msg dto.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("bus is closed")
	}
	b.audit = append(b.audit, msg)
	q := b.queue(msg.To)
	b.mu.Unlock()

	b.log.DebugContext(ctx, "Publishing message",
		logger.StringField("id", msg.ID),
		logger.StringField("from", msg.From),
		logger.StringField("to", msg.To),
		logger.StringField("type", string(msg.Type)),
	)

	select {
	case q <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe returns the receive channel for an agent. The channel is created
// on first use so subscribe and publish order does not matter.
func (b *InMemoryBus) Subscribe(agent string) <-chan dto.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queue(agent)
}

func (b *InMemoryBus) queue(agent string) chan dto.Message {
	q, ok := b.queues[agent]
	if !ok {
		q = make(chan dto.Message, defaultQueueSize)
		b.queues[agent] = q
	}
	return q
}

// History returns a copy of the audited messages matching the filter, in
// publish order.
func (b *InMemoryBus) History(filter HistoryFilter) []dto.Message {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []dto.Message
	for _, msg := range b.audit {
		if filter.From != "" && msg.From != filter.From {
			continue
		}
		if filter.To != "" && msg.To != filter.To {
			continue
		}
		if filter.Type != "" && msg.Type != filter.Type {
			continue
		}
		out = append(out, msg)
	}
	return out
}

// Close closes every queue. Publish after Close returns an error.
func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, q := range b.queues {
		close(q)
	}
}

// Package memory registers the "memory" broker: in-process queues for
// development and tests. Each destination is a buffered channel drained by
// one goroutine per subscription; a handler error requeues the delivery once.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/chirino/solace-bridge/internal/config"
	registrybroker "github.com/chirino/solace-bridge/internal/registry/broker"
)

const queueDepth = 1024

func init() {
	registrybroker.Register(registrybroker.Plugin{
		Name: "memory",
		Loader: func(_ context.Context, _ *config.Config) (registrybroker.Gateway, error) {
			return New(), nil
		},
	})
}

// New returns an empty in-process broker.
func New() *Broker {
	return &Broker{queues: map[string]chan registrybroker.Delivery{}}
}

type Broker struct {
	mu     sync.Mutex
	queues map[string]chan registrybroker.Delivery
	subs   []*subscription
	closed bool
}

func (b *Broker) queue(destination string) chan registrybroker.Delivery {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[destination]
	if !ok {
		q = make(chan registrybroker.Delivery, queueDepth)
		b.queues[destination] = q
	}
	return q
}

func (b *Broker) Publish(_ context.Context, destination, payload string, properties map[string]string) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("memory broker: closed")
	}
	b.mu.Unlock()

	props := make(map[string]string, len(properties))
	for k, v := range properties {
		props[k] = v
	}
	d := registrybroker.Delivery{
		Payload:       payload,
		MessageID:     props["messageId"],
		CorrelationID: props["correlationId"],
		Properties:    props,
	}
	select {
	case b.queue(destination) <- d:
		return nil
	default:
		return fmt.Errorf("memory broker: queue %q full", destination)
	}
}

func (b *Broker) Subscribe(ctx context.Context, queue string, handler registrybroker.Handler) (registrybroker.Subscription, error) {
	sub := &subscription{done: make(chan struct{})}
	q := b.queue(queue)

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.done:
				return
			case d := <-q:
				if err := handler(ctx, d); err != nil {
					// Single redelivery keeps tests deterministic.
					select {
					case q <- d:
					default:
					}
				}
			}
		}
	}()
	return sub, nil
}

func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, sub := range b.subs {
		sub.close()
	}
	return nil
}

// Depth reports the number of undelivered messages on a destination.
// Test helper.
func (b *Broker) Depth(destination string) int {
	return len(b.queue(destination))
}

// Drain removes and returns all undelivered messages on a destination.
// Test helper.
func (b *Broker) Drain(destination string) []registrybroker.Delivery {
	q := b.queue(destination)
	var out []registrybroker.Delivery
	for {
		select {
		case d := <-q:
			out = append(out, d)
		default:
			return out
		}
	}
}

type subscription struct {
	once sync.Once
	done chan struct{}
}

func (s *subscription) close() { s.once.Do(func() { close(s.done) }) }

func (s *subscription) Unsubscribe() error {
	s.close()
	return nil
}

var _ registrybroker.Gateway = (*Broker)(nil)

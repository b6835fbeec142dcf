// Package redis registers the "redis" broker backend. Destinations map to
// Redis lists (LPUSH publish, BRPOP consume) so each message is delivered to
// a single consumer, mirroring the durable-queue semantics the bridge needs.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	goredis "github.com/redis/go-redis/v9"

	"github.com/chirino/solace-bridge/internal/config"
	registrybroker "github.com/chirino/solace-bridge/internal/registry/broker"
)

const popTimeout = 2 * time.Second

func init() {
	registrybroker.Register(registrybroker.Plugin{
		Name:   "redis",
		Loader: load,
	})
}

func load(ctx context.Context, cfg *config.Config) (registrybroker.Gateway, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis broker: SOLACE_BRIDGE_REDIS_URL is required")
	}
	opts, err := goredis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis broker: invalid URL: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis broker: ping failed: %w", err)
	}
	return &redisBroker{client: client}, nil
}

// envelope is the wire form of a delivery on a Redis list.
type envelope struct {
	Payload       string            `json:"payload"`
	MessageID     string            `json:"messageId,omitempty"`
	CorrelationID string            `json:"correlationId,omitempty"`
	Properties    map[string]string `json:"properties,omitempty"`
}

func queueKey(destination string) string {
	return "bridge-queue:" + destination
}

type redisBroker struct {
	client *goredis.Client
	wg     sync.WaitGroup

	mu     sync.Mutex
	cancel []context.CancelFunc
	closed bool
}

func (b *redisBroker) Publish(ctx context.Context, destination, payload string, properties map[string]string) error {
	env := envelope{
		Payload:       payload,
		MessageID:     properties["messageId"],
		CorrelationID: properties["correlationId"],
		Properties:    properties,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("redis broker: encode delivery: %w", err)
	}
	if err := b.client.LPush(ctx, queueKey(destination), data).Err(); err != nil {
		return fmt.Errorf("redis broker: publish to %q: %w", destination, err)
	}
	return nil
}

func (b *redisBroker) Subscribe(ctx context.Context, queue string, handler registrybroker.Handler) (registrybroker.Subscription, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, fmt.Errorf("redis broker: closed")
	}
	subCtx, cancel := context.WithCancel(ctx)
	b.cancel = append(b.cancel, cancel)
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			res, err := b.client.BRPop(subCtx, popTimeout, queueKey(queue)).Result()
			if err != nil {
				if errors.Is(err, goredis.Nil) {
					continue
				}
				if subCtx.Err() != nil {
					return
				}
				log.Warn("Redis consume error", "queue", queue, "err", err)
				continue
			}
			// BRPOP returns [key, value].
			if len(res) != 2 {
				continue
			}
			var env envelope
			if err := json.Unmarshal([]byte(res[1]), &env); err != nil {
				log.Warn("Dropping undecodable queue entry", "queue", queue, "err", err)
				continue
			}
			d := registrybroker.Delivery{
				Payload:       env.Payload,
				MessageID:     env.MessageID,
				CorrelationID: env.CorrelationID,
				Properties:    env.Properties,
			}
			if err := handler(subCtx, d); err != nil {
				// Negative ack: requeue at the tail for redelivery.
				if pushErr := b.client.RPush(context.Background(), queueKey(queue), res[1]).Err(); pushErr != nil {
					log.Error("Failed to requeue delivery", "queue", queue, "err", pushErr)
				}
			}
		}
	}()
	return subscriptionFunc(cancel), nil
}

func (b *redisBroker) Close() error {
	b.mu.Lock()
	b.closed = true
	for _, cancel := range b.cancel {
		cancel()
	}
	b.mu.Unlock()
	b.wg.Wait()
	return b.client.Close()
}

type subscriptionFunc context.CancelFunc

func (f subscriptionFunc) Unsubscribe() error {
	f()
	return nil
}

var _ registrybroker.Gateway = (*redisBroker)(nil)

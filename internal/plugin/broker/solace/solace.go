// Package solace registers the "solace" broker gateway over the Solace SMF
// messaging API. Publishes are persistent and acknowledged by the broker;
// subscriptions consume durable queues with client acknowledgement.
package solace

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"solace.dev/go/messaging"
	"solace.dev/go/messaging/pkg/solace"
	solaceconfig "solace.dev/go/messaging/pkg/solace/config"
	"solace.dev/go/messaging/pkg/solace/message"
	"solace.dev/go/messaging/pkg/solace/resource"

	"github.com/chirino/solace-bridge/internal/config"
	registrybroker "github.com/chirino/solace-bridge/internal/registry/broker"
)

const (
	publishAckTimeout = 30 * time.Second
	terminateGrace    = 10 * time.Second
)

func init() {
	registrybroker.Register(registrybroker.Plugin{
		Name:   "solace",
		Loader: load,
	})
}

func load(_ context.Context, cfg *config.Config) (registrybroker.Gateway, error) {
	if cfg.SolaceHost == "" {
		return nil, fmt.Errorf("solace broker: SOLACE_BRIDGE_SOLACE_HOST is required")
	}
	props := solaceconfig.ServicePropertyMap{
		solaceconfig.TransportLayerPropertyHost:                cfg.SolaceHost,
		solaceconfig.ServicePropertyVPNName:                    cfg.SolaceVPN,
		solaceconfig.AuthenticationPropertySchemeBasicUserName: cfg.SolaceUsername,
		solaceconfig.AuthenticationPropertySchemeBasicPassword: cfg.SolacePassword,
	}
	service, err := messaging.NewMessagingServiceBuilder().
		FromConfigurationProvider(props).
		Build()
	if err != nil {
		return nil, fmt.Errorf("solace broker: building messaging service: %w", err)
	}
	if err := service.Connect(); err != nil {
		return nil, fmt.Errorf("solace broker: connecting to %s: %w", cfg.SolaceHost, err)
	}
	publisher, err := service.CreatePersistentMessagePublisherBuilder().Build()
	if err != nil {
		_ = service.Disconnect()
		return nil, fmt.Errorf("solace broker: building publisher: %w", err)
	}
	if err := publisher.Start(); err != nil {
		_ = service.Disconnect()
		return nil, fmt.Errorf("solace broker: starting publisher: %w", err)
	}
	return &solaceBroker{service: service, publisher: publisher}, nil
}

type solaceBroker struct {
	service   solace.MessagingService
	publisher solace.PersistentMessagePublisher
	receivers []solace.PersistentMessageReceiver
}

func (b *solaceBroker) Publish(_ context.Context, destination, payload string, properties map[string]string) error {
	builder := b.service.MessageBuilder()
	if id := properties["messageId"]; id != "" {
		builder = builder.WithProperty(solaceconfig.MessagePropertyApplicationMessageID, id)
	}
	if corr := properties["correlationId"]; corr != "" {
		builder = builder.WithProperty(solaceconfig.MessagePropertyCorrelationID, corr)
	}
	userProps := solaceconfig.MessagePropertyMap{}
	for k, v := range properties {
		if k == "messageId" || k == "correlationId" {
			continue
		}
		userProps[solaceconfig.MessageProperty(k)] = v
	}
	if len(userProps) > 0 {
		builder = builder.FromConfigurationProvider(userProps)
	}
	msg, err := builder.BuildWithStringPayload(payload)
	if err != nil {
		return fmt.Errorf("solace broker: building message: %w", err)
	}
	if err := b.publisher.PublishAwaitAcknowledgement(msg, resource.TopicOf(destination), publishAckTimeout, nil); err != nil {
		return fmt.Errorf("solace broker: publish to %q: %w", destination, err)
	}
	return nil
}

func (b *solaceBroker) Subscribe(ctx context.Context, queue string, handler registrybroker.Handler) (registrybroker.Subscription, error) {
	receiver, err := b.service.CreatePersistentMessageReceiverBuilder().
		WithMessageClientAcknowledgement().
		Build(resource.QueueDurableExclusive(queue))
	if err != nil {
		return nil, fmt.Errorf("solace broker: building receiver for %q: %w", queue, err)
	}
	if err := receiver.Start(); err != nil {
		return nil, fmt.Errorf("solace broker: starting receiver for %q: %w", queue, err)
	}
	err = receiver.ReceiveAsync(func(inbound message.InboundMessage) {
		payload, ok := inbound.GetPayloadAsString()
		if !ok {
			// Non-text payload: acknowledge to avoid a poison-message loop.
			log.Warn("Discarding non-text message", "queue", queue)
			_ = receiver.Ack(inbound)
			return
		}
		d := registrybroker.Delivery{
			Payload:    payload,
			Properties: map[string]string{},
		}
		if id, ok := inbound.GetApplicationMessageID(); ok {
			d.MessageID = id
			d.Properties["messageId"] = id
		}
		if corr, ok := inbound.GetCorrelationID(); ok {
			d.CorrelationID = corr
			d.Properties["correlationId"] = corr
		}
		if err := handler(ctx, d); err != nil {
			// Leave unacked; the broker redelivers.
			log.Warn("Handler rejected delivery", "queue", queue, "err", err)
			return
		}
		_ = receiver.Ack(inbound)
	})
	if err != nil {
		_ = receiver.Terminate(terminateGrace)
		return nil, fmt.Errorf("solace broker: subscribing to %q: %w", queue, err)
	}
	b.receivers = append(b.receivers, receiver)
	return &solaceSubscription{receiver: receiver}, nil
}

func (b *solaceBroker) Close() error {
	var firstErr error
	for _, r := range b.receivers {
		if err := r.Terminate(terminateGrace); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := b.publisher.Terminate(terminateGrace); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := b.service.Disconnect(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

type solaceSubscription struct {
	receiver solace.PersistentMessageReceiver
}

func (s *solaceSubscription) Unsubscribe() error {
	return s.receiver.Terminate(terminateGrace)
}

var _ registrybroker.Gateway = (*solaceBroker)(nil)

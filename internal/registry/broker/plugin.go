package broker

import (
	"context"
	"fmt"

	"github.com/chirino/solace-bridge/internal/config"
)

// Delivery is one message handed to a subscription handler.
type Delivery struct {
	Payload       string
	MessageID     string
	CorrelationID string
	Properties    map[string]string
}

// Handler processes a delivery. Returning nil acknowledges the message;
// returning an error negatively acknowledges it for redelivery where the
// backend supports that.
type Handler func(ctx context.Context, d Delivery) error

// Subscription is a live queue consumer.
type Subscription interface {
	Unsubscribe() error
}

// Gateway is the SPI for broker backends. Destinations are opaque strings;
// topic-vs-queue semantics belong to broker configuration.
type Gateway interface {
	Publish(ctx context.Context, destination, payload string, properties map[string]string) error
	Subscribe(ctx context.Context, queue string, handler Handler) (Subscription, error)
	Close() error
}

// Plugin bundles a gateway name with its loader function.
type Plugin struct {
	Name   string
	Loader func(ctx context.Context, cfg *config.Config) (Gateway, error)
}

var plugins []Plugin

// Register adds a broker gateway plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered gateway names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the Plugin for the given name.
func Select(name string) (Plugin, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p, nil
		}
	}
	return Plugin{}, fmt.Errorf("unknown broker %q; registered: %v", name, Names())
}

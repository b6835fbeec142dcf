package keywrap

import (
	"context"
	"fmt"

	"github.com/chirino/solace-bridge/internal/config"
)

// Provider is the SPI for key-wrapping backends. A provider wraps per-message
// data encryption keys under a master key it controls; the master key never
// crosses this interface.
type Provider interface {
	// Wrap encrypts a plaintext DEK under the master key.
	Wrap(ctx context.Context, dek []byte) ([]byte, error)

	// Unwrap recovers a plaintext DEK previously produced by Wrap.
	Unwrap(ctx context.Context, wrapped []byte) ([]byte, error)

	// KeyID identifies the master key; it is recorded in every encrypted record.
	KeyID() string
}

// Plugin bundles a provider name with its loader function.
type Plugin struct {
	Name   string
	Loader func(ctx context.Context, cfg *config.Config) (Provider, error)
}

var plugins []Plugin

// Register adds a keywrap provider plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered provider names.
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
	return Plugin{}, fmt.Errorf("unknown keywrap provider %q; registered: %v", name, Names())
}

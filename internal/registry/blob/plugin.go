package blob

import (
	"context"
	"errors"
	"fmt"

	"github.com/chirino/solace-bridge/internal/config"
)

// ErrNotFound is returned by Get and Delete when the named blob does not exist.
var ErrNotFound = errors.New("blob not found")

// Store is the SPI for object-store backends. Names are opaque to the store;
// the record layer owns the naming scheme.
type Store interface {
	Put(ctx context.Context, name string, data []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
	// List returns up to limit blob names with the given prefix, newest first
	// where the backend supports it. limit <= 0 means backend default.
	List(ctx context.Context, prefix string, limit int) ([]string, error)
	Delete(ctx context.Context, name string) error
}

// Plugin bundles a store name with its loader function.
type Plugin struct {
	Name   string
	Loader func(ctx context.Context, cfg *config.Config) (Store, error)
}

var plugins []Plugin

// Register adds a blob store plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered store names.
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
	return Plugin{}, fmt.Errorf("unknown blob store %q; registered: %v", name, Names())
}

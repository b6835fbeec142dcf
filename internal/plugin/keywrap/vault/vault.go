// Package vault registers the "vault" keywrap provider backed by HashiCorp
// Vault Transit. Every wrap/unwrap is a network call bounded by its own
// timeout; unwrapped DEKs may be held in a bounded TTL cache.
package vault

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/chirino/solace-bridge/internal/config"
	"github.com/chirino/solace-bridge/internal/plugin/keywrap/dekcache"
	"github.com/chirino/solace-bridge/internal/registry/keywrap"
)

func init() {
	keywrap.Register(keywrap.Plugin{
		Name: "vault",
		Loader: func(_ context.Context, cfg *config.Config) (keywrap.Provider, error) {
			if cfg.VaultTransitKey == "" {
				return nil, fmt.Errorf("vault keywrap: SOLACE_BRIDGE_VAULT_TRANSIT_KEY is required")
			}
			client, err := vaultapi.NewClient(vaultapi.DefaultConfig())
			if err != nil {
				return nil, fmt.Errorf("vault keywrap: creating client: %w", err)
			}
			return &vaultProvider{
				client:     client,
				transitKey: cfg.VaultTransitKey,
				timeout:    cfg.KeywrapTimeout,
				cache:      dekcache.New(cfg.DEKCacheTTL),
			}, nil
		},
	})
}

type vaultProvider struct {
	client     *vaultapi.Client
	transitKey string
	timeout    time.Duration
	cache      *dekcache.Cache
}

func (p *vaultProvider) KeyID() string { return p.transitKey }

func (p *vaultProvider) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.timeout)
}

func (p *vaultProvider) Wrap(ctx context.Context, dek []byte) ([]byte, error) {
	ctx, cancel := p.callCtx(ctx)
	defer cancel()
	path := fmt.Sprintf("transit/encrypt/%s", p.transitKey)
	secret, err := p.client.Logical().WriteWithContext(ctx, path, map[string]any{
		"plaintext": base64.StdEncoding.EncodeToString(dek),
	})
	if err != nil {
		return nil, fmt.Errorf("vault keywrap: transit/encrypt: %w", err)
	}
	ciphertext, ok := secret.Data["ciphertext"].(string)
	if !ok {
		return nil, fmt.Errorf("vault keywrap: transit/encrypt: missing ciphertext in response")
	}
	return []byte(ciphertext), nil
}

func (p *vaultProvider) Unwrap(ctx context.Context, wrapped []byte) ([]byte, error) {
	if dek, ok := p.cache.Get(wrapped); ok {
		return dek, nil
	}
	ctx, cancel := p.callCtx(ctx)
	defer cancel()
	path := fmt.Sprintf("transit/decrypt/%s", p.transitKey)
	secret, err := p.client.Logical().WriteWithContext(ctx, path, map[string]any{
		"ciphertext": string(wrapped),
	})
	if err != nil {
		return nil, fmt.Errorf("vault keywrap: transit/decrypt: %w", err)
	}
	plaintextB64, ok := secret.Data["plaintext"].(string)
	if !ok {
		return nil, fmt.Errorf("vault keywrap: transit/decrypt: missing plaintext in response")
	}
	dek, err := base64.StdEncoding.DecodeString(plaintextB64)
	if err != nil {
		return nil, fmt.Errorf("vault keywrap: transit/decrypt: decoding plaintext: %w", err)
	}
	p.cache.Put(wrapped, dek)
	return dek, nil
}

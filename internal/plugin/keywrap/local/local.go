// Package local registers the "local" keywrap provider. The master key is a
// 256-bit value loaded from configuration and wrap/unwrap is AES-256-GCM
// under that key. Development only; production deployments use a remote
// provider so the master key never lives in process config.
package local

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/chirino/solace-bridge/internal/config"
	"github.com/chirino/solace-bridge/internal/crypto/envelope"
	"github.com/chirino/solace-bridge/internal/registry/keywrap"
)

// KeyID is the identifier recorded on records wrapped by this provider.
const KeyID = "local-key"

func init() {
	keywrap.Register(keywrap.Plugin{
		Name: "local",
		Loader: func(_ context.Context, cfg *config.Config) (keywrap.Provider, error) {
			key, err := DecodeKey(cfg.LocalMasterKey)
			if err != nil {
				return nil, fmt.Errorf("local keywrap: %w", err)
			}
			return &localProvider{masterKey: key}, nil
		},
	})
}

// DecodeKey parses a 32-byte AES key from hex or (std/url) base64.
func DecodeKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("SOLACE_BRIDGE_LOCAL_MASTER_KEY is required")
	}
	var key []byte
	var err error
	if key, err = hex.DecodeString(s); err != nil {
		if key, err = base64.StdEncoding.DecodeString(s); err != nil {
			if key, err = base64.URLEncoding.DecodeString(s); err != nil {
				return nil, fmt.Errorf("master key is neither hex nor base64")
			}
		}
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("master key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}

type localProvider struct {
	masterKey []byte
}

func (p *localProvider) KeyID() string { return KeyID }

// Wrap seals the DEK under the master key; the wrapped form is iv||ciphertext.
func (p *localProvider) Wrap(_ context.Context, dek []byte) ([]byte, error) {
	iv, ciphertext, err := envelope.AESGCMSeal(p.masterKey, dek)
	if err != nil {
		return nil, fmt.Errorf("local keywrap: wrap: %w", err)
	}
	return append(iv, ciphertext...), nil
}

func (p *localProvider) Unwrap(_ context.Context, wrapped []byte) ([]byte, error) {
	if len(wrapped) < 12 {
		return nil, fmt.Errorf("local keywrap: wrapped DEK too short")
	}
	dek, err := envelope.AESGCMOpen(p.masterKey, wrapped[:12], wrapped[12:])
	if err != nil {
		return nil, fmt.Errorf("local keywrap: unwrap: %w", err)
	}
	return dek, nil
}

// Package envelope implements per-message envelope encryption: each plaintext
// is sealed with a fresh AES-256-GCM data encryption key, and the DEK is
// wrapped by the configured keywrap provider. Ciphertext, wrapped DEK, IV,
// algorithm and key id travel together in a Record.
package envelope

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/chirino/solace-bridge/internal/registry/keywrap"
)

// Algorithm is the only cipher this service produces or accepts.
const Algorithm = "AES-256-GCM"

const (
	dekSize = 32
	ivSize  = 12
)

// ErrAuthentication is returned when the GCM tag does not verify. Callers
// must not expose any plaintext when this is returned.
var ErrAuthentication = errors.New("envelope: ciphertext authentication failed")

// Record is the output of Encrypt and the input of Decrypt.
type Record struct {
	Ciphertext []byte
	WrappedDEK []byte
	IV         []byte
	Algorithm  string
	KeyID      string
}

// Service performs envelope encryption against a single keywrap provider.
type Service struct {
	wrapper keywrap.Provider
}

// New builds a Service and probes the provider with a throwaway wrap/unwrap
// round trip. An unreachable provider is a construction failure: the service
// never silently downgrades.
func New(ctx context.Context, wrapper keywrap.Provider) (*Service, error) {
	probe := make([]byte, dekSize)
	if _, err := rand.Read(probe); err != nil {
		return nil, fmt.Errorf("envelope: generating probe key: %w", err)
	}
	wrapped, err := wrapper.Wrap(ctx, probe)
	if err != nil {
		return nil, fmt.Errorf("envelope: keywrap provider %q probe wrap failed: %w", wrapper.KeyID(), err)
	}
	unwrapped, err := wrapper.Unwrap(ctx, wrapped)
	if err != nil {
		return nil, fmt.Errorf("envelope: keywrap provider %q probe unwrap failed: %w", wrapper.KeyID(), err)
	}
	Zero(probe)
	Zero(unwrapped)
	return &Service{wrapper: wrapper}, nil
}

// KeyID returns the identifier of the wrapping master key.
func (s *Service) KeyID() string { return s.wrapper.KeyID() }

// Encrypt seals plaintext under a fresh DEK and IV and wraps the DEK.
// Two encryptions of the same plaintext never share an IV or ciphertext.
func (s *Service) Encrypt(ctx context.Context, plaintext string) (*Record, error) {
	dek := make([]byte, dekSize)
	if _, err := rand.Read(dek); err != nil {
		return nil, fmt.Errorf("envelope: generating DEK: %w", err)
	}
	defer Zero(dek)

	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("envelope: generating IV: %w", err)
	}

	gcm, err := newGCM(dek)
	if err != nil {
		return nil, err
	}
	ciphertext := gcm.Seal(nil, iv, []byte(plaintext), nil)

	wrapped, err := s.wrapper.Wrap(ctx, dek)
	if err != nil {
		return nil, fmt.Errorf("envelope: wrapping DEK: %w", err)
	}

	return &Record{
		Ciphertext: ciphertext,
		WrappedDEK: wrapped,
		IV:         iv,
		Algorithm:  Algorithm,
		KeyID:      s.wrapper.KeyID(),
	}, nil
}

// Decrypt unwraps the record's DEK and opens the ciphertext. A tag
// verification failure surfaces as ErrAuthentication; no partial plaintext
// is ever returned.
func (s *Service) Decrypt(ctx context.Context, rec *Record) (string, error) {
	if rec.Algorithm != "" && rec.Algorithm != Algorithm {
		return "", fmt.Errorf("envelope: unsupported algorithm %q", rec.Algorithm)
	}
	dek, err := s.wrapper.Unwrap(ctx, rec.WrappedDEK)
	if err != nil {
		return "", fmt.Errorf("envelope: unwrapping DEK: %w", err)
	}
	defer Zero(dek)

	gcm, err := newGCM(dek)
	if err != nil {
		return "", err
	}
	plain, err := gcm.Open(nil, rec.IV, rec.Ciphertext, nil)
	if err != nil {
		return "", ErrAuthentication
	}
	return string(plain), nil
}

// Zero overwrites a key or plaintext buffer before release.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("envelope: AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("envelope: GCM: %w", err)
	}
	return gcm, nil
}

// AESGCMSeal encrypts plaintext with AES-256-GCM using key and a random IV.
// Returns (iv, ciphertext, error). Exported for use by keywrap providers.
func AESGCMSeal(key, plaintext []byte) (iv, ciphertext []byte, err error) {
	iv = make([]byte, ivSize)
	if _, err = rand.Read(iv); err != nil {
		return nil, nil, fmt.Errorf("envelope: generating IV: %w", err)
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}
	return iv, gcm.Seal(nil, iv, plaintext, nil), nil
}

// AESGCMOpen decrypts ciphertext (with appended GCM tag) using key and iv.
// Exported for use by keywrap providers.
func AESGCMOpen(key, iv, ciphertext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	plain, err := gcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plain, nil
}

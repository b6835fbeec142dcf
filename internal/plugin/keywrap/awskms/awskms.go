// Package awskms registers the "kms" keywrap provider backed by AWS KMS.
// Every wrap/unwrap is a network call bounded by its own timeout; unwrapped
// DEKs may be held in a bounded TTL cache.
package awskms

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"

	"github.com/chirino/solace-bridge/internal/config"
	"github.com/chirino/solace-bridge/internal/plugin/keywrap/dekcache"
	"github.com/chirino/solace-bridge/internal/registry/keywrap"
)

func init() {
	keywrap.Register(keywrap.Plugin{
		Name: "kms",
		Loader: func(ctx context.Context, cfg *config.Config) (keywrap.Provider, error) {
			if cfg.KMSKeyID == "" {
				return nil, fmt.Errorf("kms keywrap: SOLACE_BRIDGE_KMS_KEY_ID is required")
			}
			awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
			if err != nil {
				return nil, fmt.Errorf("kms keywrap: loading AWS config: %w", err)
			}
			return &kmsProvider{
				client:  kms.NewFromConfig(awsCfg),
				keyID:   cfg.KMSKeyID,
				timeout: cfg.KeywrapTimeout,
				cache:   dekcache.New(cfg.DEKCacheTTL),
			}, nil
		},
	})
}

type kmsProvider struct {
	client  *kms.Client
	keyID   string
	timeout time.Duration
	cache   *dekcache.Cache
}

func (p *kmsProvider) KeyID() string { return p.keyID }

func (p *kmsProvider) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.timeout)
}

func (p *kmsProvider) Wrap(ctx context.Context, dek []byte) ([]byte, error) {
	ctx, cancel := p.callCtx(ctx)
	defer cancel()
	out, err := p.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:     aws.String(p.keyID),
		Plaintext: dek,
	})
	if err != nil {
		return nil, fmt.Errorf("kms keywrap: Encrypt: %w", err)
	}
	return out.CiphertextBlob, nil
}

func (p *kmsProvider) Unwrap(ctx context.Context, wrapped []byte) ([]byte, error) {
	if dek, ok := p.cache.Get(wrapped); ok {
		return dek, nil
	}
	ctx, cancel := p.callCtx(ctx)
	defer cancel()
	out, err := p.client.Decrypt(ctx, &kms.DecryptInput{
		CiphertextBlob: wrapped,
		KeyId:          aws.String(p.keyID),
	})
	if err != nil {
		return nil, fmt.Errorf("kms keywrap: Decrypt: %w", err)
	}
	p.cache.Put(wrapped, out.Plaintext)
	return out.Plaintext, nil
}

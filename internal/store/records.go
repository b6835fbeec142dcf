// Package store persists message and transformation records as JSON blobs,
// envelope-encrypting payloads before they reach the object store.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chirino/solace-bridge/internal/crypto/envelope"
	"github.com/chirino/solace-bridge/internal/model"
	registryblob "github.com/chirino/solace-bridge/internal/registry/blob"
)

const (
	messagePrefix        = "message-"
	transformationPrefix = "transformation-"
)

// ErrNotFound mirrors the blob store's not-found condition.
var ErrNotFound = registryblob.ErrNotFound

// Records writes and reads the bridge's persisted records. With a nil crypto
// service records are stored in plaintext (encryption disabled).
type Records struct {
	blobs  registryblob.Store
	crypto *envelope.Service
}

// New builds a record store. crypto may be nil to disable encryption.
func New(blobs registryblob.Store, crypto *envelope.Service) *Records {
	return &Records{blobs: blobs, crypto: crypto}
}

// Encrypted reports whether payloads are encrypted at rest.
func (r *Records) Encrypted() bool { return r.crypto != nil }

// SaveMessage persists one stored-message record and returns it as written.
func (r *Records) SaveMessage(ctx context.Context, msgID uuid.UUID, content, destination, correlationID string, status model.MessageStatus) (*model.StoredMessage, error) {
	rec := &model.StoredMessage{
		MessageID:      msgID,
		Destination:    destination,
		CorrelationID:  correlationID,
		Timestamp:      time.Now().UTC(),
		OriginalStatus: status,
	}
	if r.crypto != nil {
		enc, err := r.crypto.Encrypt(ctx, content)
		if err != nil {
			return nil, fmt.Errorf("store: encrypting message %s: %w", msgID, err)
		}
		rec.Encrypted = true
		rec.EncryptedContent = enc.Ciphertext
		rec.EncryptedDataKey = enc.WrappedDEK
		rec.EncryptionIV = enc.IV
		rec.EncryptionAlgorithm = enc.Algorithm
		rec.KeyVaultKeyID = enc.KeyID
	} else {
		rec.Content = &content
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("store: encoding message %s: %w", msgID, err)
	}
	if err := r.blobs.Put(ctx, rec.BlobName(), data); err != nil {
		return nil, fmt.Errorf("store: writing message %s: %w", msgID, err)
	}
	return rec, nil
}

// GetMessage loads a record and decrypts its payload. The returned record
// carries the plaintext in Content with the crypto fields cleared; a tampered
// ciphertext surfaces envelope.ErrAuthentication and no plaintext.
func (r *Records) GetMessage(ctx context.Context, id uuid.UUID) (*model.StoredMessage, error) {
	rec, err := r.loadMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rec.Encrypted {
		return rec, nil
	}
	if r.crypto == nil {
		return nil, fmt.Errorf("store: message %s is encrypted but encryption is disabled", id)
	}
	plain, err := r.crypto.Decrypt(ctx, &envelope.Record{
		Ciphertext: rec.EncryptedContent,
		WrappedDEK: rec.EncryptedDataKey,
		IV:         rec.EncryptionIV,
		Algorithm:  rec.EncryptionAlgorithm,
		KeyID:      rec.KeyVaultKeyID,
	})
	if err != nil {
		return nil, fmt.Errorf("store: decrypting message %s: %w", id, err)
	}
	rec.Content = &plain
	rec.Encrypted = false
	rec.EncryptedContent = nil
	rec.EncryptedDataKey = nil
	rec.EncryptionIV = nil
	rec.EncryptionAlgorithm = ""
	rec.KeyVaultKeyID = ""
	return rec, nil
}

func (r *Records) loadMessage(ctx context.Context, id uuid.UUID) (*model.StoredMessage, error) {
	data, err := r.blobs.Get(ctx, fmt.Sprintf("%s%s.json", messagePrefix, id))
	if err != nil {
		return nil, err
	}
	var rec model.StoredMessage
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("store: decoding message %s: %w", id, err)
	}
	return &rec, nil
}

// ListMessages returns up to limit records as stored, newest first. Payloads
// are not decrypted on the listing path.
func (r *Records) ListMessages(ctx context.Context, limit int) ([]model.StoredMessage, error) {
	names, err := r.blobs.List(ctx, messagePrefix, limit)
	if err != nil {
		return nil, fmt.Errorf("store: listing messages: %w", err)
	}
	records := make([]model.StoredMessage, 0, len(names))
	for _, name := range names {
		idPart := strings.TrimSuffix(strings.TrimPrefix(name, messagePrefix), ".json")
		id, err := uuid.Parse(idPart)
		if err != nil {
			continue
		}
		rec, err := r.loadMessage(ctx, id)
		if err != nil {
			continue
		}
		records = append(records, *rec)
	}
	return records, nil
}

// DeleteMessage removes a record blob.
func (r *Records) DeleteMessage(ctx context.Context, id uuid.UUID) error {
	return r.blobs.Delete(ctx, fmt.Sprintf("%s%s.json", messagePrefix, id))
}

// SaveTransformation persists a transformation record, encrypting input and
// output under independent DEKs so one leaked payload key exposes only one
// message. Both DEKs wrap under the same master key.
func (r *Records) SaveTransformation(ctx context.Context, rec *model.TransformationRecord, inputContent, outputContent string) error {
	if r.crypto != nil {
		in, err := r.crypto.Encrypt(ctx, inputContent)
		if err != nil {
			return fmt.Errorf("store: encrypting transformation %s input: %w", rec.TransformationID, err)
		}
		rec.Encrypted = true
		rec.InputCiphertext = in.Ciphertext
		rec.InputWrappedDek = in.WrappedDEK
		rec.InputIV = in.IV
		rec.EncryptionAlgorithm = in.Algorithm
		rec.KeyVaultKeyID = in.KeyID

		if outputContent != "" {
			out, err := r.crypto.Encrypt(ctx, outputContent)
			if err != nil {
				return fmt.Errorf("store: encrypting transformation %s output: %w", rec.TransformationID, err)
			}
			rec.OutputCiphertext = out.Ciphertext
			rec.OutputWrappedDek = out.WrappedDEK
			rec.OutputIV = out.IV
		}
	} else {
		rec.InputContent = &inputContent
		if outputContent != "" {
			rec.OutputContent = &outputContent
		}
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: encoding transformation %s: %w", rec.TransformationID, err)
	}
	if err := r.blobs.Put(ctx, rec.BlobName(), data); err != nil {
		return fmt.Errorf("store: writing transformation %s: %w", rec.TransformationID, err)
	}
	return nil
}

// GetTransformation loads a transformation record as stored.
func (r *Records) GetTransformation(ctx context.Context, id uuid.UUID) (*model.TransformationRecord, error) {
	data, err := r.blobs.Get(ctx, fmt.Sprintf("%s%s.json", transformationPrefix, id))
	if err != nil {
		return nil, err
	}
	var rec model.TransformationRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("store: decoding transformation %s: %w", id, err)
	}
	return &rec, nil
}

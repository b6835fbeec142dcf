// Package model holds the bridge's persisted record types and enums.
// The JSON field names are the wire format of the stored blobs and must not
// change without a data migration.
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageStatus is the terminal status of a message as seen by the send pipeline.
type MessageStatus string

const (
	StatusSent        MessageStatus = "SENT"
	StatusFailed      MessageStatus = "FAILED"
	StatusExcluded    MessageStatus = "EXCLUDED"
	StatusRepublished MessageStatus = "REPUBLISHED"
)

// TransformationStatus is the outcome of a single transformation attempt.
type TransformationStatus string

const (
	TransformSuccess         TransformationStatus = "SUCCESS"
	TransformPartialSuccess  TransformationStatus = "PARTIAL_SUCCESS"
	TransformFailed          TransformationStatus = "FAILED"
	TransformParseError      TransformationStatus = "PARSE_ERROR"
	TransformValidationError TransformationStatus = "VALIDATION_ERROR"
	TransformTimeout         TransformationStatus = "TIMEOUT"
	TransformRetry           TransformationStatus = "RETRY"
	TransformDeadLetter      TransformationStatus = "DEAD_LETTER"
)

// TransformationType is the closed set of supported transformations.
type TransformationType string

const (
	MT103ToMT202    TransformationType = "MT103_TO_MT202"
	MT202ToMT103    TransformationType = "MT202_TO_MT103"
	MT940ToMT950    TransformationType = "MT940_TO_MT950"
	MT103ToPain001  TransformationType = "MT103_TO_PAIN001"
	MT202ToPacs008  TransformationType = "MT202_TO_PACS008"
	MT940ToCamt053  TransformationType = "MT940_TO_CAMT053"
	Pain001ToMT103  TransformationType = "PAIN001_TO_MT103"
	Pacs008ToMT202  TransformationType = "PACS008_TO_MT202"
	Camt053ToMT940  TransformationType = "CAMT053_TO_MT940"
	EnrichFields    TransformationType = "ENRICH_FIELDS"
	NormalizeFormat TransformationType = "NORMALIZE_FORMAT"
	Custom          TransformationType = "CUSTOM"
)

// ParseTransformationType validates a transformation type name.
func ParseTransformationType(s string) (TransformationType, error) {
	switch t := TransformationType(s); t {
	case MT103ToMT202, MT202ToMT103, MT940ToMT950,
		MT103ToPain001, MT202ToPacs008, MT940ToCamt053,
		Pain001ToMT103, Pacs008ToMT202, Camt053ToMT940,
		EnrichFields, NormalizeFormat, Custom:
		return t, nil
	default:
		return "", fmt.Errorf("unknown transformation type %q", s)
	}
}

// ExtractorType selects an identifier-extraction strategy.
type ExtractorType string

const (
	ExtractorPattern        ExtractorType = "PATTERN"
	ExtractorStructuredPath ExtractorType = "STRUCTURED_PATH"
	ExtractorDelimited      ExtractorType = "DELIMITED"
	ExtractorFixedPosition  ExtractorType = "FIXED_POSITION"
)

// StoredMessage is the persisted record for a single bridged message.
// When Encrypted is true, Content is null and all crypto fields are set;
// when false, only Content carries the payload.
type StoredMessage struct {
	MessageID      uuid.UUID     `json:"messageId"`
	Destination    string        `json:"destination"`
	CorrelationID  string        `json:"correlationId,omitempty"`
	Timestamp      time.Time     `json:"timestamp"`
	OriginalStatus MessageStatus `json:"originalStatus"`

	Encrypted bool    `json:"encrypted"`
	Content   *string `json:"content"`

	EncryptedContent    []byte `json:"encryptedContent,omitempty"`
	EncryptedDataKey    []byte `json:"encryptedDataKey,omitempty"`
	EncryptionIV        []byte `json:"encryptionIv,omitempty"`
	EncryptionAlgorithm string `json:"encryptionAlgorithm,omitempty"`
	KeyVaultKeyID       string `json:"keyVaultKeyId,omitempty"`
}

// BlobName returns the object-store name for this record.
func (m *StoredMessage) BlobName() string {
	return fmt.Sprintf("message-%s.json", m.MessageID)
}

// TransformationRecord is the persisted record for one transformation.
// Input and output payloads are encrypted under independent DEKs; both DEKs
// wrap under the master key identified by KeyVaultKeyID.
type TransformationRecord struct {
	TransformationID   uuid.UUID            `json:"transformationId"`
	InputMessageID     string               `json:"inputMessageId"`
	OutputMessageID    string               `json:"outputMessageId,omitempty"`
	InputMessageType   string               `json:"inputMessageType,omitempty"`
	OutputMessageType  string               `json:"outputMessageType,omitempty"`
	TransformationType TransformationType   `json:"transformationType"`
	Status             TransformationStatus `json:"status"`
	InputQueue         string               `json:"inputQueue"`
	OutputQueue        string               `json:"outputQueue"`
	CorrelationID      string               `json:"correlationId,omitempty"`
	Timestamp          time.Time            `json:"timestamp"`
	ProcessingTimeMs   int64                `json:"processingTimeMs"`
	AttemptCount       int                  `json:"attemptCount"`
	ErrorMessage       string               `json:"errorMessage,omitempty"`
	Warnings           []string             `json:"warnings,omitempty"`
	ConfidenceScore    *float64             `json:"confidenceScore,omitempty"`

	Encrypted bool `json:"encrypted"`

	InputContent     *string `json:"inputContent"`
	InputCiphertext  []byte  `json:"inputCiphertext,omitempty"`
	InputWrappedDek  []byte  `json:"inputWrappedDek,omitempty"`
	InputIV          []byte  `json:"inputIv,omitempty"`
	OutputContent    *string `json:"outputContent"`
	OutputCiphertext []byte  `json:"outputCiphertext,omitempty"`
	OutputWrappedDek []byte  `json:"outputWrappedDek,omitempty"`
	OutputIV         []byte  `json:"outputIv,omitempty"`

	EncryptionAlgorithm string `json:"encryptionAlgorithm,omitempty"`
	KeyVaultKeyID       string `json:"keyVaultKeyId,omitempty"`
}

// BlobName returns the object-store name for this record.
func (t *TransformationRecord) BlobName() string {
	return fmt.Sprintf("transformation-%s.json", t.TransformationID)
}

// ExclusionRule filters messages before they reach the broker. Identifiers
// extracted from the payload by the configured extractor are matched against
// ExcludedIdentifiers (comma-separated, `*` wildcards allowed).
type ExclusionRule struct {
	RuleID              uuid.UUID     `json:"ruleId"`
	Name                string        `json:"name"`
	MessageType         string        `json:"messageType,omitempty"`
	ExtractorType       ExtractorType `json:"extractorType"`
	ExtractorConfig     string        `json:"extractorConfig"`
	ExcludedIdentifiers string        `json:"excludedIdentifiers"`
	Active              bool          `json:"active"`
	Priority            int           `json:"priority"`
}

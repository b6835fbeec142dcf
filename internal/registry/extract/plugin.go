package extract

import (
	"github.com/chirino/solace-bridge/internal/model"
)

// Extractor pulls identifiers out of an arbitrary textual payload.
// Implementations must be total: malformed config or content yields an empty
// result, never a panic or an error.
type Extractor interface {
	// Type names the strategy (PATTERN, STRUCTURED_PATH, DELIMITED, FIXED_POSITION).
	Type() model.ExtractorType

	// Supports reports whether this extractor can handle payloads of the given
	// message-type hint. The empty hint means "unknown" and is accepted by all.
	Supports(messageType string) bool

	// ExtractIDs returns every identifier found in content per config.
	ExtractIDs(content, config string) []string
}

var extractors []Extractor

// Register adds an extractor. Called from init() in plugin packages.
func Register(e Extractor) {
	extractors = append(extractors, e)
}

// All returns the registered extractors in registration order.
func All() []Extractor {
	return extractors
}

// ByType returns the extractor for the given strategy, or nil.
func ByType(t model.ExtractorType) Extractor {
	for _, e := range extractors {
		if e.Type() == t {
			return e
		}
	}
	return nil
}

// Names returns the registered strategy names.
func Names() []string {
	names := make([]string, len(extractors))
	for i, e := range extractors {
		names[i] = string(e.Type())
	}
	return names
}

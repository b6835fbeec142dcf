// Package fixedpos registers the FIXED_POSITION extractor: the identifier is
// a byte slice of the content at a configured offset and length.
package fixedpos

import (
	"strconv"
	"strings"

	"github.com/chirino/solace-bridge/internal/model"
	registryextract "github.com/chirino/solace-bridge/internal/registry/extract"
)

func init() {
	registryextract.Register(Extractor{})
}

type Extractor struct{}

func (Extractor) Type() model.ExtractorType { return model.ExtractorFixedPosition }

// Supports accepts any message type: fixed-width layouts carry no type hint.
func (Extractor) Supports(string) bool { return true }

// ExtractIDs expects config "<offset>|<length>" and returns the trimmed
// substring content[offset : offset+length] when fully in bounds; anything
// else yields an empty result.
func (Extractor) ExtractIDs(content, config string) []string {
	parts := strings.SplitN(config, "|", 2)
	if len(parts) != 2 {
		return nil
	}
	offset, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || offset < 0 {
		return nil
	}
	length, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || length <= 0 {
		return nil
	}
	if offset+length > len(content) {
		return nil
	}
	id := strings.TrimSpace(content[offset : offset+length])
	if id == "" {
		return nil
	}
	return []string{id}
}

var _ registryextract.Extractor = Extractor{}

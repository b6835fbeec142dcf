// Package delimited registers the DELIMITED extractor: content is a set of
// newline-separated segments of delimiter-joined fields, HL7/CSV/TSV style.
package delimited

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

func (Extractor) Type() model.ExtractorType { return model.ExtractorDelimited }

func (Extractor) Supports(messageType string) bool {
	switch strings.ToUpper(messageType) {
	case "", "HL7", "CSV", "TSV", "DELIMITED":
		return true
	default:
		return false
	}
}

// ExtractIDs expects config "<delimiter>|<segmentName>|<fieldIndex>".
// An empty delimiter means `|`; `\t` is the literal tab. The first field of
// each segment is its name; an empty segmentName matches every segment.
// fieldIndex is the zero-based token index within the segment. Malformed
// config or out-of-range indexes yield an empty result.
func (Extractor) ExtractIDs(content, config string) []string {
	parts := strings.SplitN(config, "|", 3)
	if len(parts) != 3 {
		return nil
	}
	delimiter := parts[0]
	switch delimiter {
	case "":
		delimiter = "|"
	case `\t`:
		delimiter = "\t"
	}
	segmentName := parts[1]
	index, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil || index < 0 {
		return nil
	}

	var ids []string
	for _, line := range strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, delimiter)
		if segmentName != "" && fields[0] != segmentName {
			continue
		}
		if index < len(fields) {
			if id := strings.TrimSpace(fields[index]); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

var _ registryextract.Extractor = Extractor{}

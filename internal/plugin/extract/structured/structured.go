// Package structured registers the STRUCTURED_PATH extractor: identifiers
// are found by walking a JSON document along a dotted path.
package structured

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chirino/solace-bridge/internal/model"
	registryextract "github.com/chirino/solace-bridge/internal/registry/extract"
)

func init() {
	registryextract.Register(Extractor{})
}

type Extractor struct{}

func (Extractor) Type() model.ExtractorType { return model.ExtractorStructuredPath }

// Supports accepts JSON-ish message types and the unknown hint.
func (Extractor) Supports(messageType string) bool {
	switch strings.ToUpper(messageType) {
	case "", "JSON", "ISO20022", "MX":
		return true
	default:
		return false
	}
}

// ExtractIDs walks content as JSON along config segments ("a.b.c"). A
// terminal primitive is returned stringified; a terminal array returns each
// element. Parse errors or missing segments yield an empty result.
func (Extractor) ExtractIDs(content, config string) []string {
	path := strings.Split(strings.TrimSpace(config), ".")
	if len(path) == 0 || path[0] == "" {
		return nil
	}
	var doc any
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return nil
	}
	node := doc
	for _, seg := range path {
		obj, ok := node.(map[string]any)
		if !ok {
			return nil
		}
		node, ok = obj[seg]
		if !ok {
			return nil
		}
	}
	switch v := node.(type) {
	case []any:
		var ids []string
		for _, elem := range v {
			if s := stringify(elem); s != "" {
				ids = append(ids, s)
			}
		}
		return ids
	default:
		if s := stringify(v); s != "" {
			return []string{s}
		}
		return nil
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// JSON numbers decode to float64; render integers without a fraction.
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	case bool:
		return fmt.Sprintf("%v", t)
	default:
		return ""
	}
}

var _ registryextract.Extractor = Extractor{}

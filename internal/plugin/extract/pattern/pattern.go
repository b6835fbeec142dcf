// Package pattern registers the PATTERN extractor: identifiers are the
// capture-group matches of a configured regular expression. Used for SWIFT
// UETRs (the :121: field), FIX tags and free-form identifiers.
package pattern

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/chirino/solace-bridge/internal/model"
	registryextract "github.com/chirino/solace-bridge/internal/registry/extract"
)

func init() {
	registryextract.Register(Extractor{})
}

type Extractor struct{}

func (Extractor) Type() model.ExtractorType { return model.ExtractorPattern }

// Supports accepts any message type: a regex can target any textual payload.
func (Extractor) Supports(string) bool { return true }

// ExtractIDs expects config "<regex>|<groupIndex>". The regex may itself
// contain `|`, so the group index is taken from the last segment; when the
// last segment is not an integer the whole config is the regex and the full
// match is returned. An invalid regex yields an empty result.
func (Extractor) ExtractIDs(content, config string) []string {
	expr := config
	group := 0
	if idx := strings.LastIndex(config, "|"); idx >= 0 {
		if n, err := strconv.Atoi(strings.TrimSpace(config[idx+1:])); err == nil {
			expr = config[:idx]
			group = n
		}
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil
	}
	var ids []string
	for _, m := range re.FindAllStringSubmatch(content, -1) {
		if group < 0 || group >= len(m) {
			continue
		}
		if id := m[group]; id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

var _ registryextract.Extractor = Extractor{}

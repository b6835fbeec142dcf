// Package exclusion decides whether a message may reach the broker. Rules
// extract identifiers from the payload and match them against per-rule
// excluded-identifier lists and a global excluded-ID set. The rule table and
// the global set are mutable at runtime.
package exclusion

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/chirino/solace-bridge/internal/model"
	registryextract "github.com/chirino/solace-bridge/internal/registry/extract"
)

// ErrRuleNotFound is returned by UpdateRule and RemoveRule for unknown ids.
var ErrRuleNotFound = errors.New("exclusion rule not found")

// matcher matches one entry of a rule's excluded-identifier list.
type matcher struct {
	exact string         // set when the entry has no wildcard
	glob  *regexp.Regexp // set when the entry contains `*`
}

func (m matcher) matches(id string) bool {
	if m.glob != nil {
		return m.glob.MatchString(id)
	}
	return m.exact == id
}

// compileMatchers parses a comma-separated identifier list. `*` matches any
// run of characters; every other character is literal. Matching is
// case-sensitive.
func compileMatchers(list string) []matcher {
	var matchers []matcher
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "*") {
			matchers = append(matchers, matcher{exact: entry})
			continue
		}
		var pattern strings.Builder
		pattern.WriteString("^")
		for _, part := range strings.Split(entry, "*") {
			pattern.WriteString(regexp.QuoteMeta(part))
			pattern.WriteString(".*")
		}
		expr := strings.TrimSuffix(pattern.String(), ".*") + "$"
		re, err := regexp.Compile(expr)
		if err != nil {
			continue
		}
		matchers = append(matchers, matcher{glob: re})
	}
	return matchers
}

// TestResult is the outcome of a diagnostic evaluation.
type TestResult struct {
	Excluded      bool       `json:"excluded"`
	MatchedRuleID *uuid.UUID `json:"matchedRuleId,omitempty"`
	MatchedID     string     `json:"matchedId,omitempty"`
}

// Statistics summarizes the engine state.
type Statistics struct {
	TotalRules          int      `json:"totalRules"`
	ActiveRules         int      `json:"activeRules"`
	ExcludedIDsCount    int      `json:"excludedIdsCount"`
	ExtractorsAvailable []string `json:"extractorsAvailable"`
}

// Engine holds the rule table and the global excluded-ID set. The evaluation
// path takes the read lock only; mutations take the write lock, so readers
// never observe a half-applied change.
type Engine struct {
	mu        sync.RWMutex
	rules     map[uuid.UUID]model.ExclusionRule
	matchers  map[uuid.UUID][]matcher
	globalIDs map[string]struct{}
}

// New returns an empty engine.
func New() *Engine {
	return &Engine{
		rules:     map[uuid.UUID]model.ExclusionRule{},
		matchers:  map[uuid.UUID][]matcher{},
		globalIDs: map[string]struct{}{},
	}
}

// AddRule stores a rule, assigning an id when absent, and compiles its
// matchers.
func (e *Engine) AddRule(rule model.ExclusionRule) (model.ExclusionRule, error) {
	if rule.ExtractorType != "" && registryextract.ByType(rule.ExtractorType) == nil {
		return model.ExclusionRule{}, fmt.Errorf("unknown extractor type %q", rule.ExtractorType)
	}
	if rule.RuleID == uuid.Nil {
		rule.RuleID = uuid.New()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules[rule.RuleID] = rule
	e.matchers[rule.RuleID] = compileMatchers(rule.ExcludedIdentifiers)
	return rule, nil
}

// UpdateRule replaces an existing rule and invalidates its compiled matchers.
func (e *Engine) UpdateRule(rule model.ExclusionRule) error {
	if rule.ExtractorType != "" && registryextract.ByType(rule.ExtractorType) == nil {
		return fmt.Errorf("unknown extractor type %q", rule.ExtractorType)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.rules[rule.RuleID]; !ok {
		return ErrRuleNotFound
	}
	e.rules[rule.RuleID] = rule
	e.matchers[rule.RuleID] = compileMatchers(rule.ExcludedIdentifiers)
	return nil
}

// RemoveRule deletes a rule by id.
func (e *Engine) RemoveRule(id uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.rules[id]; !ok {
		return ErrRuleNotFound
	}
	delete(e.rules, id)
	delete(e.matchers, id)
	return nil
}

// GetRule returns a rule by id.
func (e *Engine) GetRule(id uuid.UUID) (model.ExclusionRule, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rule, ok := e.rules[id]
	return rule, ok
}

// ListRules returns all rules in evaluation order: descending priority, ties
// broken by ascending rule id. The order is stable and independent of
// insertion order.
func (e *Engine) ListRules() []model.ExclusionRule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sortedRulesLocked()
}

func (e *Engine) sortedRulesLocked() []model.ExclusionRule {
	rules := make([]model.ExclusionRule, 0, len(e.rules))
	for _, r := range e.rules {
		rules = append(rules, r)
	}
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		return rules[i].RuleID.String() < rules[j].RuleID.String()
	})
	return rules
}

// ClearAll removes every rule and every global id.
func (e *Engine) ClearAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = map[uuid.UUID]model.ExclusionRule{}
	e.matchers = map[uuid.UUID][]matcher{}
	e.globalIDs = map[string]struct{}{}
}

// AddGlobalID adds an identifier that excludes regardless of rule.
func (e *Engine) AddGlobalID(id string) {
	id = strings.TrimSpace(id)
	if id == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.globalIDs[id] = struct{}{}
}

// RemoveGlobalID deletes an identifier from the global set.
func (e *Engine) RemoveGlobalID(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.globalIDs[id]; !ok {
		return false
	}
	delete(e.globalIDs, id)
	return true
}

// ListGlobalIDs returns the global excluded identifiers, sorted.
func (e *Engine) ListGlobalIDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.globalIDs))
	for id := range e.globalIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ShouldExclude reports whether content is excluded under any active rule or
// the global id set. messageType is an optional hint; rules with a different
// messageType are skipped.
func (e *Engine) ShouldExclude(content, messageType string) bool {
	return e.TestAgainst(content, messageType).Excluded
}

// TestAgainst evaluates exactly like ShouldExclude but reports which rule and
// identifier matched. Rules are scanned in descending priority order; the
// first match wins.
func (e *Engine) TestAgainst(content, messageType string) TestResult {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, rule := range e.sortedRulesLocked() {
		if !rule.Active {
			continue
		}
		if rule.MessageType != "" && rule.MessageType != messageType {
			continue
		}
		extractor := registryextract.ByType(rule.ExtractorType)
		if extractor == nil || !extractor.Supports(messageType) {
			continue
		}
		matchers := e.matchers[rule.RuleID]
		for _, id := range extractor.ExtractIDs(content, rule.ExtractorConfig) {
			for _, m := range matchers {
				if m.matches(id) {
					ruleID := rule.RuleID
					return TestResult{Excluded: true, MatchedRuleID: &ruleID, MatchedID: id}
				}
			}
			if _, ok := e.globalIDs[id]; ok {
				ruleID := rule.RuleID
				return TestResult{Excluded: true, MatchedRuleID: &ruleID, MatchedID: id}
			}
		}
	}
	return TestResult{}
}

// Stats returns engine statistics.
func (e *Engine) Stats() Statistics {
	e.mu.RLock()
	defer e.mu.RUnlock()
	active := 0
	for _, r := range e.rules {
		if r.Active {
			active++
		}
	}
	return Statistics{
		TotalRules:          len(e.rules),
		ActiveRules:         active,
		ExcludedIDsCount:    len(e.globalIDs),
		ExtractorsAvailable: registryextract.Names(),
	}
}

package exclusion

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/chirino/solace-bridge/internal/model"

	_ "github.com/chirino/solace-bridge/internal/plugin/extract/delimited"
	_ "github.com/chirino/solace-bridge/internal/plugin/extract/fixedpos"
	_ "github.com/chirino/solace-bridge/internal/plugin/extract/pattern"
	_ "github.com/chirino/solace-bridge/internal/plugin/extract/structured"
)

func patternRule(name, config, excluded string, priority int) model.ExclusionRule {
	return model.ExclusionRule{
		Name:                name,
		ExtractorType:       model.ExtractorPattern,
		ExtractorConfig:     config,
		ExcludedIdentifiers: excluded,
		Active:              true,
		Priority:            priority,
	}
}

func TestAddRuleAssignsID(t *testing.T) {
	e := New()
	rule, err := e.AddRule(patternRule("block-acme", `:20:(\w+)|1`, "FT123", 0))
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, rule.RuleID)

	got, ok := e.GetRule(rule.RuleID)
	require.True(t, ok)
	require.Equal(t, "block-acme", got.Name)
}

func TestAddRuleRejectsUnknownExtractor(t *testing.T) {
	e := New()
	_, err := e.AddRule(model.ExclusionRule{
		Name:          "bad",
		ExtractorType: "TELEPATHY",
		Active:        true,
	})
	require.Error(t, err)
}

func TestShouldExcludeExactMatch(t *testing.T) {
	e := New()
	_, err := e.AddRule(patternRule("refs", `:20:(\w+)|1`, "FT123,FT999", 0))
	require.NoError(t, err)

	require.True(t, e.ShouldExclude(":20:FT123\n:32A:x", ""))
	require.True(t, e.ShouldExclude(":20:FT999", ""))
	require.False(t, e.ShouldExclude(":20:FT124", ""))
	// Case-sensitive.
	require.False(t, e.ShouldExclude(":20:ft123", ""))
}

func TestShouldExcludeWildcard(t *testing.T) {
	e := New()
	_, err := e.AddRule(patternRule("prefix", `:20:(\w+)|1`, "SANC*", 0))
	require.NoError(t, err)

	require.True(t, e.ShouldExclude(":20:SANC001", ""))
	require.True(t, e.ShouldExclude(":20:SANC", ""))
	require.False(t, e.ShouldExclude(":20:XSANC001", ""))
}

func TestGlobalIDsExcludeAcrossRules(t *testing.T) {
	e := New()
	_, err := e.AddRule(patternRule("extract-only", `:20:(\w+)|1`, "NOTHING-MATCHES", 0))
	require.NoError(t, err)

	require.False(t, e.ShouldExclude(":20:GLOBAL1", ""))
	e.AddGlobalID("GLOBAL1")
	require.True(t, e.ShouldExclude(":20:GLOBAL1", ""))

	require.True(t, e.RemoveGlobalID("GLOBAL1"))
	require.False(t, e.RemoveGlobalID("GLOBAL1"))
	require.False(t, e.ShouldExclude(":20:GLOBAL1", ""))
}

func TestPriorityOrderAndTieBreak(t *testing.T) {
	e := New()
	low, err := e.AddRule(patternRule("low", `:20:(\w+)|1`, "BOTH", 1))
	require.NoError(t, err)
	high, err := e.AddRule(patternRule("high", `:20:(\w+)|1`, "BOTH", 10))
	require.NoError(t, err)

	res := e.TestAgainst(":20:BOTH", "")
	require.True(t, res.Excluded)
	require.NotNil(t, res.MatchedRuleID)
	require.Equal(t, high.RuleID, *res.MatchedRuleID)
	require.Equal(t, "BOTH", res.MatchedID)

	rules := e.ListRules()
	require.Equal(t, []uuid.UUID{high.RuleID, low.RuleID}, []uuid.UUID{rules[0].RuleID, rules[1].RuleID})

	// Ties on priority order by ascending rule id.
	e2 := New()
	a, err := e2.AddRule(patternRule("a", `x`, "x", 5))
	require.NoError(t, err)
	b, err := e2.AddRule(patternRule("b", `x`, "x", 5))
	require.NoError(t, err)
	sorted := e2.ListRules()
	if a.RuleID.String() < b.RuleID.String() {
		require.Equal(t, a.RuleID, sorted[0].RuleID)
	} else {
		require.Equal(t, b.RuleID, sorted[0].RuleID)
	}
}

func TestInactiveAndTypedRulesAreSkipped(t *testing.T) {
	e := New()
	rule := patternRule("inactive", `:20:(\w+)|1`, "FT123", 0)
	rule.Active = false
	_, err := e.AddRule(rule)
	require.NoError(t, err)
	require.False(t, e.ShouldExclude(":20:FT123", ""))

	typed := patternRule("mt103-only", `:20:(\w+)|1`, "FT123", 0)
	typed.MessageType = "MT103"
	_, err = e.AddRule(typed)
	require.NoError(t, err)
	require.True(t, e.ShouldExclude(":20:FT123", "MT103"))
	require.False(t, e.ShouldExclude(":20:FT123", "MT940"))
}

func TestUpdateAndRemoveRule(t *testing.T) {
	e := New()
	rule, err := e.AddRule(patternRule("r", `:20:(\w+)|1`, "OLD", 0))
	require.NoError(t, err)
	require.True(t, e.ShouldExclude(":20:OLD", ""))

	rule.ExcludedIdentifiers = "NEW"
	require.NoError(t, e.UpdateRule(rule))
	require.False(t, e.ShouldExclude(":20:OLD", ""))
	require.True(t, e.ShouldExclude(":20:NEW", ""))

	require.NoError(t, e.RemoveRule(rule.RuleID))
	require.ErrorIs(t, e.RemoveRule(rule.RuleID), ErrRuleNotFound)
	require.ErrorIs(t, e.UpdateRule(rule), ErrRuleNotFound)
	require.False(t, e.ShouldExclude(":20:NEW", ""))
}

func TestStats(t *testing.T) {
	e := New()
	_, err := e.AddRule(patternRule("active", `x`, "x", 0))
	require.NoError(t, err)
	inactive := patternRule("inactive", `x`, "x", 0)
	inactive.Active = false
	_, err = e.AddRule(inactive)
	require.NoError(t, err)
	e.AddGlobalID("G1")
	e.AddGlobalID("G2")

	stats := e.Stats()
	require.Equal(t, 2, stats.TotalRules)
	require.Equal(t, 1, stats.ActiveRules)
	require.Equal(t, 2, stats.ExcludedIDsCount)
	require.NotEmpty(t, stats.ExtractorsAvailable)

	e.ClearAll()
	stats = e.Stats()
	require.Zero(t, stats.TotalRules)
	require.Zero(t, stats.ExcludedIDsCount)
	require.Empty(t, e.ListGlobalIDs())
}

package exclusions

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/chirino/solace-bridge/internal/exclusion"
	"github.com/chirino/solace-bridge/internal/model"

	_ "github.com/chirino/solace-bridge/internal/plugin/extract/pattern"
)

func newTestRouter(t *testing.T) (*gin.Engine, *exclusion.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine := exclusion.New()
	r := gin.New()
	MountRoutes(r, engine)
	return r, engine
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	r.ServeHTTP(w, req)
	return w
}

const ruleBody = `{
	"name": "sanctions",
	"extractorType": "PATTERN",
	"extractorConfig": ":20:(\\w+)|1",
	"excludedIdentifiers": "FT123,SANC*",
	"active": true,
	"priority": 5
}`

func TestRuleCRUD(t *testing.T) {
	r, engine := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/exclusions/rules", ruleBody)
	require.Equal(t, http.StatusOK, w.Code)
	var created model.ExclusionRule
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEqual(t, uuid.Nil, created.RuleID)
	require.True(t, engine.ShouldExclude(":20:FT123", ""))

	w = doJSON(t, r, http.MethodGet, "/api/exclusions/rules/"+created.RuleID.String(), "")
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/exclusions/rules", "")
	require.Equal(t, http.StatusOK, w.Code)
	var rules []model.ExclusionRule
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rules))
	require.Len(t, rules, 1)

	updated := strings.Replace(ruleBody, "FT123,SANC*", "OTHER", 1)
	w = doJSON(t, r, http.MethodPut, "/api/exclusions/rules/"+created.RuleID.String(), updated)
	require.Equal(t, http.StatusOK, w.Code)
	require.False(t, engine.ShouldExclude(":20:FT123", ""))
	require.True(t, engine.ShouldExclude(":20:OTHER", ""))

	w = doJSON(t, r, http.MethodDelete, "/api/exclusions/rules/"+created.RuleID.String(), "")
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(t, r, http.MethodDelete, "/api/exclusions/rules/"+created.RuleID.String(), "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRuleValidation(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/exclusions/rules", `{"name":"no extractor"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/exclusions/rules",
		`{"name":"bad","extractorType":"TELEPATHY"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/exclusions/rules/not-a-uuid", "")
	require.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, r, http.MethodPut, "/api/exclusions/rules/"+uuid.NewString(), ruleBody)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestGlobalIDs(t *testing.T) {
	r, engine := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/exclusions/ids", `{"id":"GLOBAL-1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []string{"GLOBAL-1"}, engine.ListGlobalIDs())

	w = doJSON(t, r, http.MethodGet, "/api/exclusions/ids", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "GLOBAL-1")

	w = doJSON(t, r, http.MethodDelete, "/api/exclusions/ids/GLOBAL-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(t, r, http.MethodDelete, "/api/exclusions/ids/GLOBAL-1", "")
	require.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/exclusions/ids", `{}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTestEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(t, r, http.MethodPost, "/api/exclusions/rules", ruleBody)
	require.Equal(t, http.StatusOK, w.Code)
	var created model.ExclusionRule
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = doJSON(t, r, http.MethodPost, "/api/exclusions/test", `{"content":":20:SANC007"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var res exclusion.TestResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.True(t, res.Excluded)
	require.Equal(t, "SANC007", res.MatchedID)
	require.NotNil(t, res.MatchedRuleID)
	require.Equal(t, created.RuleID, *res.MatchedRuleID)

	w = doJSON(t, r, http.MethodPost, "/api/exclusions/test", `{"content":":20:CLEAN"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.False(t, res.Excluded)

	w = doJSON(t, r, http.MethodPost, "/api/exclusions/test", `{}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatsEndpoint(t *testing.T) {
	r, engine := newTestRouter(t)
	_ = doJSON(t, r, http.MethodPost, "/api/exclusions/rules", ruleBody)
	engine.AddGlobalID("X")

	w := doJSON(t, r, http.MethodGet, "/api/exclusions/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats exclusion.Statistics
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	require.Equal(t, 1, stats.TotalRules)
	require.Equal(t, 1, stats.ActiveRules)
	require.Equal(t, 1, stats.ExcludedIDsCount)
	require.Contains(t, stats.ExtractorsAvailable, "PATTERN")
}

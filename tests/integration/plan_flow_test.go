//go:build integration

package integration

import (
	"context"
	"net/http"
	"testing"

	"github.com/bissquit/crisis-command/internal/domain"
	"github.com/bissquit/crisis-command/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type planResponse struct {
	Data domain.ResponsePlan `json:"data"`
}

func activePlan(t *testing.T, client *testutil.Client, crisisID string) domain.ResponsePlan {
	t.Helper()
	resp, err := client.GET("/api/v1/crises/" + crisisID + "/plans/active")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, testutil.ReadBody(t, resp))

	var out planResponse
	testutil.DecodeJSON(t, resp, &out)
	return out.Data
}

func planActionByTitle(t *testing.T, p domain.ResponsePlan, title string) domain.Action {
	t.Helper()
	for _, a := range p.Actions {
		if a.Title == title {
			return a
		}
	}
	t.Fatalf("action %q not in plan %s", title, p.ID)
	return domain.Action{}
}

func TestPlan_AutoCreatedForHighSeverity(t *testing.T) {
	client := clientAs(t, domain.RoleOperator)
	c := detectCrisis(t, client, "cyber-attack", "critical")

	p := activePlan(t, client, c.ID)
	assert.Equal(t, c.ID, p.CrisisID)
	assert.Equal(t, domain.PlanStatusActive, p.Status)
	assert.NotEmpty(t, p.StakeholderIDs)
	assert.NotEmpty(t, p.Communications)
	assert.NotEmpty(t, p.Timeline.Milestones)

	planActionByTitle(t, p, "activate crisis team")
	planActionByTitle(t, p, "isolate affected systems")

	// A second plan for the same crisis is rejected while one is active.
	resp, err := client.POST("/api/v1/crises/"+c.ID+"/plans", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestPlan_ManualCreationForLowSeverity(t *testing.T) {
	client := clientAs(t, domain.RoleOperator)
	c := detectCrisis(t, client, "operational", "low")

	// Nothing was auto-built.
	resp, err := client.GET("/api/v1/crises/" + c.ID + "/plans/active")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = client.POST("/api/v1/crises/"+c.ID+"/plans", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode, testutil.ReadBody(t, resp))

	var out planResponse
	testutil.DecodeJSON(t, resp, &out)
	assert.Equal(t, c.ID, out.Data.CrisisID)
}

func TestPlan_ActionExecutionRespectsDependencies(t *testing.T) {
	client := clientAs(t, domain.RoleOperator)
	c := detectCrisis(t, client, "cyber-attack", "high")
	p := activePlan(t, client, c.ID)

	activate := planActionByTitle(t, p, "activate crisis team")
	isolate := planActionByTitle(t, p, "isolate affected systems")

	base := "/api/v1/plans/" + p.ID + "/actions/"

	// Executing a dependent action before its dependency completes fails.
	resp, err := client.POST(base+isolate.ID+"/execute", map[string]string{"assignee": "sec-team"})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Missing assignee is a validation failure.
	resp, err = client.POST(base+activate.ID+"/execute", map[string]string{})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = client.POST(base+activate.ID+"/execute", map[string]string{"assignee": "coordinator"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, testutil.ReadBody(t, resp))
	var afterExecute planResponse
	testutil.DecodeJSON(t, resp, &afterExecute)
	assert.Equal(t, domain.ActionStatusInProgress, planActionByTitle(t, afterExecute.Data, "activate crisis team").Status)

	resp, err = client.POST(base+activate.ID+"/complete", map[string]string{"notes": "bridge open"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, testutil.ReadBody(t, resp))
	resp.Body.Close()

	// The dependency is satisfied now.
	resp, err = client.POST(base+isolate.ID+"/execute", map[string]string{"assignee": "sec-team"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, testutil.ReadBody(t, resp))
	resp.Body.Close()
}

func TestPlan_FailureReportsFeedEscalation(t *testing.T) {
	client := clientAs(t, domain.RoleOperator)
	c := detectCrisis(t, client, "operational", "medium")

	resp, err := client.POST("/api/v1/crises/"+c.ID+"/plans", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode, testutil.ReadBody(t, resp))
	var created planResponse
	testutil.DecodeJSON(t, resp, &created)
	p := created.Data

	activate := planActionByTitle(t, p, "activate crisis team")
	base := "/api/v1/plans/" + p.ID + "/actions/" + activate.ID

	resp, err = client.POST(base+"/execute", map[string]string{"assignee": "coordinator"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, testutil.ReadBody(t, resp))
	resp.Body.Close()

	for i := 0; i < 3; i++ {
		resp, err = client.POST(base+"/fail", map[string]string{"reason": "paging provider outage"})
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode, testutil.ReadBody(t, resp))
		resp.Body.Close()
	}

	// The engine is not ticking in tests; run one sweep explicitly.
	testApp.EscalationEngine().EvaluateAll(context.Background())

	resp, err = client.GET("/api/v1/crises/" + c.ID)
	require.NoError(t, err)
	var out crisisResponse
	testutil.DecodeJSON(t, resp, &out)

	assert.Equal(t, 3, out.Data.FailedActions)
	assert.Equal(t, domain.SeverityCritical, out.Data.Severity)
	assert.Equal(t, domain.EscalationExecutive, out.Data.EscalationLevel)
}

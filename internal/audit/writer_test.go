package audit

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jorfline/internal/domain"
)

func TestDiffOnCreateRecordsAllFields(t *testing.T) {
	r := domain.Request{Status: domain.StatusPending, RequestType: "Electrical", Details: "lights out"}
	oldV, newV, err := Diff(nil, r)
	require.NoError(t, err)
	assert.Nil(t, oldV)
	assert.Equal(t, map[string]any{"status": "Pending", "request_type": "Electrical", "details": "lights out"}, newV)
}

func TestDiffOnlyChangedFields(t *testing.T) {
	before := domain.Request{Status: domain.StatusApproved, RequestType: "Electrical", Details: "x", Remarks: "ok"}
	after := before
	after.Status = domain.StatusOngoing
	after.Remarks = "assigned"
	c := decimal.RequireFromString("120.5")
	after.CostAmount = &c
	after.HandledBy = []string{"F1", "F2"}

	oldV, newV, err := Diff(&before, after)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"status": "Approved", "remarks": "ok"}, oldV)
	assert.Equal(t, "Ongoing", newV["status"])
	assert.Equal(t, "assigned", newV["remarks"])
	assert.Equal(t, "120.50", newV["cost_amount"])
	assert.Equal(t, []any{"F1", "F2"}, newV["handled_by"])
	assert.NotContains(t, newV, "details")
}

func TestDiffCollapsesArrayElementChanges(t *testing.T) {
	before := domain.Request{Status: domain.StatusOngoing, HandledBy: []string{"F1"}}
	after := before
	after.HandledBy = []string{"F1", "F2"}
	oldV, newV, err := Diff(&before, after)
	require.NoError(t, err)
	assert.Equal(t, []any{"F1"}, oldV["handled_by"])
	assert.Equal(t, []any{"F1", "F2"}, newV["handled_by"])
}

func TestTopLevelKey(t *testing.T) {
	assert.Equal(t, "handled_by", topLevelKey("/handled_by/1"))
	assert.Equal(t, "a/b", topLevelKey("/a~1b"))
	assert.Equal(t, "", topLevelKey(""))
}

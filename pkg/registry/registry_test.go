package registry

import (
	"path/filepath"
	"testing"

	"ican-workers/internal/common/validation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_IsValidAndCompiles(t *testing.T) {
	reg := Catalog()
	require.NoError(t, reg.Validate())
	assert.Len(t, reg.Activities, 11)

	v := validation.NewSchemaValidator()
	require.NoError(t, reg.RegisterSchemas(v))
	for _, a := range reg.Activities {
		assert.True(t, v.Has(a.TaskType), a.TaskType)
	}
}

func TestCatalog_Schemas(t *testing.T) {
	v := validation.NewSchemaValidator()
	require.NoError(t, Catalog().RegisterSchemas(v))

	tests := []struct {
		name     string
		taskType string
		doc      string
		valid    bool
	}{
		{"vote yes", TaskCastVote, `{"applicationId":"a","voterId":"m","vote":"YES"}`, true},
		{"vote maybe", TaskCastVote, `{"applicationId":"a","voterId":"m","vote":"maybe"}`, false},
		{"vote missing voter", TaskCastVote, `{"applicationId":"a","vote":"no"}`, false},
		{"amount as string", TaskCheckAndReserveAllocation, `{"investorId":"i","businessId":"b","pitchId":"p","icanAmount":"100.5"}`, true},
		{"amount as number", TaskCheckAndReserveAllocation, `{"investorId":"i","businessId":"b","pitchId":"p","icanAmount":100}`, true},
		{"amount garbage", TaskCheckAndReserveAllocation, `{"investorId":"i","businessId":"b","pitchId":"p","icanAmount":"ten"}`, false},
		{"settle unknown outcome", TaskSettleAllocation, `{"allocationId":"a","outcome":"refunded"}`, false},
		{"lock bad tx type", TaskLockExchangeRate, `{"fromCurrency":"ICAN","toCurrency":"UGX","txId":"t","txType":"gift"}`, false},
		{"conversion ok", TaskCalculateConversion, `{"icanAmount":"100","lockedRate":"5000","countryCode":"ke","txType":"investment"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := v.ValidateJSON(tt.taskType, []byte(tt.doc))
			require.NoError(t, err)
			assert.Equal(t, tt.valid, res.Valid, res.GetErrorMessages())
		})
	}
}

func TestRegistry_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "activity-registry.json")
	require.NoError(t, SaveRegistry(Catalog(), path))

	loaded, err := LoadRegistry(path)
	require.NoError(t, err)
	a, ok := loaded.Find(TaskConsumeRateLock)
	require.True(t, ok)
	assert.Equal(t, CategoryExchange, a.Category)
	assert.Contains(t, a.Processes, "trust-contribution")

	_, ok = loaded.Find("franchise-search")
	assert.False(t, ok)
}

func TestRegistry_ValidateRejectsDuplicates(t *testing.T) {
	reg := &ActivityRegistry{Activities: []Activity{
		{ID: "x", DisplayName: "X", TaskType: "x", Category: CategoryExchange},
		{ID: "x", DisplayName: "X", TaskType: "x", Category: CategoryExchange},
	}}
	assert.ErrorContains(t, reg.Validate(), "duplicate activity ID")

	reg = &ActivityRegistry{Activities: []Activity{
		{ID: "y", DisplayName: "Y", TaskType: "y", Category: "franchise"},
	}}
	assert.ErrorContains(t, reg.Validate(), "unknown category")
	assert.Error(t, (&ActivityRegistry{}).Validate())
}

package main

import (
	"path/filepath"
	"testing"
	"time"

	"ican-workers/pkg/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncThenValidate(t *testing.T) {
	now = func() time.Time { return time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { now = time.Now })

	path := filepath.Join(t.TempDir(), "activity-registry.json")
	n, err := syncRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, len(registry.Catalog().Activities), n)

	n, err = validateRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, len(registry.Catalog().Activities), n)

	reg, err := registry.LoadRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, "2026-10-01T09:00:00Z", reg.LastUpdated)
}

func TestAddAndUpdate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity-registry.json")
	_, err := syncRegistry(path)
	require.NoError(t, err)

	extra := registry.Activity{
		ID:          "reconcile-allocations",
		DisplayName: "Reconcile Allocations",
		Category:    registry.CategoryInvestment,
		TaskType:    "reconcile-allocations",
	}
	require.NoError(t, addActivity(path, extra))
	assert.ErrorContains(t, addActivity(path, extra), "already exists")

	require.NoError(t, updateActivity(path, "reconcile-allocations", "processes", "investment-pitch, trust-contribution"))
	require.NoError(t, updateActivity(path, registry.TaskCastVote, "timeout", "15s"))
	assert.Error(t, updateActivity(path, registry.TaskCastVote, "timeout", "soon"))
	assert.Error(t, updateActivity(path, registry.TaskCastVote, "retries", "-1"))
	assert.Error(t, updateActivity(path, registry.TaskCastVote, "category", "franchise"))
	assert.ErrorContains(t, updateActivity(path, "missing", "status", "done"), "not found")

	reg, err := registry.LoadRegistry(path)
	require.NoError(t, err)
	a, ok := reg.Find("reconcile-allocations")
	require.True(t, ok)
	assert.Equal(t, []string{"investment-pitch", "trust-contribution"}, a.Processes)
	vote, _ := reg.Find(registry.TaskCastVote)
	assert.Equal(t, "15s", vote.Timeout)

	// A resync keeps activities that are not built in.
	n, err := syncRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, len(registry.Catalog().Activities)+1, n)
}

func TestValidateRegistry_MissingBuiltin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity-registry.json")
	require.NoError(t, addActivity(path, registry.Activity{
		ID:          "only-one",
		DisplayName: "Only One",
		Category:    registry.CategoryExchange,
		TaskType:    "only-one",
	}))
	_, err := validateRegistry(path)
	assert.ErrorContains(t, err, "missing task type")
}

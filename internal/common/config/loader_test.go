// internal/common/config/loader_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalConfig = `
camunda:
  broker_address: localhost:26500
database:
  postgres:
    host: localhost
    database: ican
    user: ${TEST_DB_USER}
  redis:
    address: localhost:6379
rate_lock:
  pairs:
    - base: ICAN
      quote: UGX
      min_rate: "1"
      default_rate: "5000"
  countries:
    - code: KE
      currency: KES
      rate: "0.035"
workers:
  cast-vote:
    enabled: false
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	t.Setenv("TEST_DB_USER", "ican")

	cfg, err := LoadFromFile(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "ican", cfg.Database.Postgres.User)
	assert.Equal(t, 5432, cfg.Database.Postgres.Port)
	assert.Equal(t, "0.60", cfg.Governance.ApprovalThreshold)
	assert.Equal(t, 5000, cfg.Governance.MaxApplicationTextLen)
	assert.Equal(t, "0.60", cfg.Allocation.CapRatio)
	assert.Equal(t, 30*time.Minute, cfg.RateLock.TTL)
	assert.Equal(t, 30*time.Second, cfg.RateLock.QuoteCacheTTL)
	assert.Equal(t, ":8080", cfg.HTTP.Address)
	assert.Equal(t, "audit-entries", cfg.Audit.Index)
}

func TestLoadFromFile_PairLookup(t *testing.T) {
	t.Setenv("TEST_DB_USER", "ican")

	cfg, err := LoadFromFile(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	pair, ok := cfg.RateLock.Pair("ican", "ugx")
	require.True(t, ok)
	assert.Equal(t, "5000", pair.DefaultRate)

	_, ok = cfg.RateLock.Pair("ICAN", "USD")
	assert.False(t, ok)
}

func TestLoadFromFile_WorkerOverrides(t *testing.T) {
	t.Setenv("TEST_DB_USER", "ican")

	cfg, err := LoadFromFile(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.False(t, IsWorkerEnabled(cfg, "cast-vote"))
	assert.True(t, IsWorkerEnabled(cfg, "lock-exchange-rate"))

	wc := GetWorkerConfig(cfg, "cast-vote")
	assert.Equal(t, 5, wc.MaxJobsActive)
	assert.Equal(t, 30000, wc.Timeout)
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "missing broker",
			body:    "database:\n  postgres:\n    host: h\n    database: d\n    user: u\n  redis:\n    address: r\n",
			wantErr: "camunda.broker_address is required",
		},
		{
			name: "threshold above one",
			body: minimalConfig + "governance:\n  approval_threshold: \"1.5\"\n",
			wantErr: "governance.approval_threshold",
		},
		{
			name: "bad country rate",
			body: `
camunda:
  broker_address: localhost:26500
database:
  postgres:
    host: localhost
    database: ican
    user: u
  redis:
    address: localhost:6379
rate_lock:
  countries:
    - code: KE
      currency: KES
      rate: "zero"
`,
			wantErr: "rate_lock.countries[0].rate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_DB_USER", "ican")
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetDuration(t *testing.T) {
	assert.Equal(t, 1500*time.Millisecond, GetDuration(1500))
}

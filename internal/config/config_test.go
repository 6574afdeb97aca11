package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/deal-engine/internal/dealmath"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Batch.MaxConcurrentCandidates)
	assert.InDelta(t, 0.05, cfg.Policy.Tolerance, 0.0001)
	assert.Equal(t, 20, cfg.Policy.DiscrepancyPenalty)
	assert.Equal(t, 70, cfg.Policy.PassThreshold)
	assert.Equal(t, 20, cfg.Policy.MinDescriptionLength)
	assert.False(t, cfg.Policy.AllowCriticalOverride)
	assert.Contains(t, cfg.Policy.NegativeKeywords, "timeshare")
	assert.InDelta(t, 25, cfg.Policy.Weights.Integrity, 0.001)
	assert.InDelta(t, 100, cfg.Policy.Weights.Sum(), 0.001)
	assert.InDelta(t, 30, cfg.Matching.Weights.ARV, 0.001)
	assert.InDelta(t, 40, cfg.Matching.Weights.Equity, 0.001)
	assert.InDelta(t, 30, cfg.Matching.Weights.Condition, 0.001)
	assert.Equal(t, 4, cfg.Providers.TimeoutSecs)
	assert.Equal(t, "https://app.regrid.com", cfg.Providers.Regrid.BaseURL)
	assert.Equal(t, "https://api.rentcast.io", cfg.Providers.RentCast.BaseURL)
	assert.Equal(t, 5, cfg.Providers.Circuit.FailureThreshold)
	assert.False(t, cfg.Providers.Geocode.Enabled)
	assert.Equal(t, "https://geocoding.geo.census.gov", cfg.Providers.Geocode.BaseURL)
	assert.InDelta(t, 0.70, cfg.Governance.MAOFactor, 0.001)
	assert.InDelta(t, 0.03, cfg.Governance.ClosingCosts, 0.001)

	require.NoError(t, cfg.Policy.Validate())
	require.NoError(t, cfg.Validate("audit"))
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  database_url: deals.db
log:
  level: debug
  format: console
server:
  port: 9090
batch:
  max_concurrent_candidates: 3
policy:
  pass_threshold: 80
  field_tolerances:
    price: 0.02
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "deals.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Batch.MaxConcurrentCandidates)
	assert.Equal(t, 80, cfg.Policy.PassThreshold)
	assert.InDelta(t, 0.02, cfg.Policy.FieldTolerances["price"], 0.0001)
	// Defaults still apply for unset values
	assert.Equal(t, 20, cfg.Policy.DiscrepancyPenalty)
	assert.InDelta(t, 25, cfg.Policy.Weights.Relevance, 0.001)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("DEAL_STORE_DRIVER", "postgres")
	t.Setenv("DEAL_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("DEAL_SERVER_PORT", "3000")
	t.Setenv("DEAL_POLICY_PASS_THRESHOLD", "65")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 65, cfg.Policy.PassThreshold)
}

func TestLoadPolicyFile(t *testing.T) {
	dir := chdirTemp(t)

	policy := `
policy:
  pass_threshold: 60
  weights:
    integrity: 40
    structural: 20
    relevance: 20
    crosscheck: 20
governance:
  mao_factor: 0.75
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "policy.yaml"), []byte(policy), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("policy_file: policy.yaml\n"), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 60, cfg.Policy.PassThreshold)
	assert.InDelta(t, 40, cfg.Policy.Weights.Integrity, 0.001)
	assert.InDelta(t, 0.75, cfg.Governance.MAOFactor, 0.001)
	// Keys absent from the policy file keep their loaded value
	assert.Equal(t, 20, cfg.Policy.MinDescriptionLength)
	assert.InDelta(t, 0.03, cfg.Governance.ClosingCosts, 0.001)
	assert.NoError(t, cfg.Policy.Validate())
}

func TestLoadPolicyFile_Missing(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("policy_file: nope.yaml\n"), 0644))

	_, err := Load()
	assert.Error(t, err)
}

func TestApplyPolicyFile_Malformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("policy: [unclosed"), 0644))

	cfg := &Config{Policy: DefaultPolicy()}
	err := cfg.ApplyPolicyFile(path)
	assert.True(t, errors.Is(err, ErrMalformedPolicy))
}

func TestPolicyValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *Policy)
		wantErr bool
	}{
		{"defaults", func(*Policy) {}, false},
		{"weights off by less than one", func(p *Policy) { p.Weights.Crosscheck = 25.5 }, false},
		{"weights sum to 90", func(p *Policy) { p.Weights.Crosscheck = 15 }, true},
		{"weights sum to 110", func(p *Policy) { p.Weights.Integrity = 35 }, true},
		{"negative weight", func(p *Policy) {
			p.Weights.Integrity = -10
			p.Weights.Structural = 60
		}, true},
		{"threshold above 100", func(p *Policy) { p.PassThreshold = 101 }, true},
		{"threshold negative", func(p *Policy) { p.PassThreshold = -1 }, true},
		{"tolerance zero", func(p *Policy) { p.Tolerance = 0 }, true},
		{"tolerance one", func(p *Policy) { p.Tolerance = 1 }, true},
		{"penalty zero", func(p *Policy) { p.DiscrepancyPenalty = 0 }, true},
		{"field tolerance out of range", func(p *Policy) { p.FieldTolerances = map[string]float64{"price": 2} }, true},
		{"field tolerance ok", func(p *Policy) { p.FieldTolerances = map[string]float64{"price": 0.01} }, false},
		{"blank keyword", func(p *Policy) { p.NegativeKeywords = []string{"scam", ""} }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultPolicy()
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrMalformedPolicy))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPolicyDiffConfig(t *testing.T) {
	p := DefaultPolicy()
	p.FieldTolerances = map[string]float64{"Price": 0.01}

	dc := p.DiffConfig()
	assert.InDelta(t, 0.05, dc.Tolerance, 0.0001)
	assert.Equal(t, 20, dc.Penalty)
	assert.InDelta(t, 0.01, dc.Fields["price"], 0.0001)

	assert.Nil(t, DefaultPolicy().DiffConfig().Fields)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{
		Policy:     DefaultPolicy(),
		Governance: dealmath.DefaultGovernance(),
	}
	cfg.Store.Driver = "memory"
	cfg.Batch.MaxConcurrentCandidates = 8
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateAudit_Memory(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("audit"))
}

func TestValidate_SQLiteRequiresURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "sqlite"

	err := cfg.Validate("audit")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "deals.db"
	assert.NoError(t, cfg.Validate("audit"))
}

func TestValidate_UnsupportedDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"

	err := cfg.Validate("audit")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), `store.driver "mysql" is not supported`)
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateMigrate_NeedsDatabase(t *testing.T) {
	cfg := validDefaults()

	err := cfg.Validate("migrate")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")

	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = "postgres://localhost/deals"
	assert.NoError(t, cfg.Validate("migrate"))
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Batch.MaxConcurrentCandidates = 0
	err := cfg.Validate("audit")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "max_concurrent_candidates must be between 1 and 64")

	cfg.Batch.MaxConcurrentCandidates = 65
	assert.Error(t, cfg.Validate("audit"))

	cfg.Batch.MaxConcurrentCandidates = 64
	assert.NoError(t, cfg.Validate("audit"))
}

func TestValidate_MatchingWeightsNegative(t *testing.T) {
	cfg := validDefaults()
	cfg.Matching.Weights.Equity = -1

	err := cfg.Validate("audit")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "matching.weights values must be >= 0")
}

func TestValidate_PolicyErrorsWrapSentinel(t *testing.T) {
	cfg := validDefaults()
	cfg.Policy.Weights.Integrity = 0

	err := cfg.Validate("audit")
	assert.True(t, errors.Is(err, ErrMalformedPolicy))
}

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/deal-engine/internal/dealmath"
	"github.com/sells-group/deal-engine/internal/matching"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig         `yaml:"store" mapstructure:"store"`
	Log        LogConfig           `yaml:"log" mapstructure:"log"`
	Server     ServerConfig        `yaml:"server" mapstructure:"server"`
	Batch      BatchConfig         `yaml:"batch" mapstructure:"batch"`
	Policy     Policy              `yaml:"policy" mapstructure:"policy"`
	PolicyFile string              `yaml:"policy_file" mapstructure:"policy_file"`
	Matching   MatchingConfig      `yaml:"matching" mapstructure:"matching"`
	Providers  ProvidersConfig     `yaml:"providers" mapstructure:"providers"`
	Governance dealmath.Governance `yaml:"governance" mapstructure:"governance"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// BatchConfig configures batch audits.
type BatchConfig struct {
	MaxConcurrentCandidates int `yaml:"max_concurrent_candidates" mapstructure:"max_concurrent_candidates"`
}

// MatchingConfig configures buy-box matching.
type MatchingConfig struct {
	Weights matching.Weights `yaml:"weights" mapstructure:"weights"`
}

// ProvidersConfig configures the public-record providers.
type ProvidersConfig struct {
	TimeoutSecs int            `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Regrid      ProviderConfig `yaml:"regrid" mapstructure:"regrid"`
	RentCast    ProviderConfig `yaml:"rentcast" mapstructure:"rentcast"`
	Circuit     CircuitConfig  `yaml:"circuit" mapstructure:"circuit"`
	Geocode     GeocodeConfig  `yaml:"geocode" mapstructure:"geocode"`
}

// GeocodeConfig enables address geocoding for radius matching.
type GeocodeConfig struct {
	Enabled   bool    `yaml:"enabled" mapstructure:"enabled"`
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// ProviderConfig holds credentials and limits for one provider. A provider
// with no key is not registered.
type ProviderConfig struct {
	Key       string  `yaml:"key" mapstructure:"key"`
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// CircuitConfig configures per-provider circuit breakers.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DEAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	def := DefaultPolicy()
	gov := dealmath.DefaultGovernance()
	mw := matching.DefaultWeights()
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.database_url", "deal-engine.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("batch.max_concurrent_candidates", 8)
	v.SetDefault("policy.tolerance", def.Tolerance)
	v.SetDefault("policy.discrepancy_penalty", def.DiscrepancyPenalty)
	v.SetDefault("policy.weights.integrity", def.Weights.Integrity)
	v.SetDefault("policy.weights.structural", def.Weights.Structural)
	v.SetDefault("policy.weights.relevance", def.Weights.Relevance)
	v.SetDefault("policy.weights.crosscheck", def.Weights.Crosscheck)
	v.SetDefault("policy.pass_threshold", def.PassThreshold)
	v.SetDefault("policy.min_description_length", def.MinDescriptionLength)
	v.SetDefault("policy.allow_critical_override", def.AllowCriticalOverride)
	v.SetDefault("policy.negative_keywords", def.NegativeKeywords)
	v.SetDefault("matching.weights.arv", mw.ARV)
	v.SetDefault("matching.weights.equity", mw.Equity)
	v.SetDefault("matching.weights.condition", mw.Condition)
	v.SetDefault("providers.timeout_secs", 4)
	v.SetDefault("providers.regrid.base_url", "https://app.regrid.com")
	v.SetDefault("providers.regrid.rate_limit", 5)
	v.SetDefault("providers.rentcast.base_url", "https://api.rentcast.io")
	v.SetDefault("providers.rentcast.rate_limit", 10)
	v.SetDefault("providers.circuit.failure_threshold", 5)
	v.SetDefault("providers.circuit.reset_timeout_secs", 60)
	v.SetDefault("providers.geocode.enabled", false)
	v.SetDefault("providers.geocode.base_url", "https://geocoding.geo.census.gov")
	v.SetDefault("providers.geocode.rate_limit", 10)
	v.SetDefault("governance.closing_costs", gov.ClosingCosts)
	v.SetDefault("governance.holding_costs", gov.HoldingCosts)
	v.SetDefault("governance.mao_factor", gov.MAOFactor)
	v.SetDefault("governance.low_equity_threshold", gov.LowEquityThreshold)
	v.SetDefault("governance.high_roi_threshold", gov.HighROIThreshold)
	v.SetDefault("governance.deviation_percent", gov.DeviationPercent)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if cfg.PolicyFile != "" {
		if err := cfg.ApplyPolicyFile(cfg.PolicyFile); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

// ApplyPolicyFile overlays the policy, governance and matching sections of
// a YAML file onto cfg. Keys absent from the file keep their current value.
func (c *Config) ApplyPolicyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "config: read policy file %s", path)
	}

	overlay := struct {
		Policy     *Policy              `yaml:"policy"`
		Governance *dealmath.Governance `yaml:"governance"`
		Matching   *MatchingConfig      `yaml:"matching"`
	}{&c.Policy, &c.Governance, &c.Matching}
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return eris.Wrapf(ErrMalformedPolicy, "parse %s: %v", path, err)
	}
	return nil
}

// Validate checks the settings a command mode needs. Modes are "audit",
// "serve" and "migrate". Policy errors wrap ErrMalformedPolicy.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "audit":
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "migrate":
		if c.Store.Driver == "" || c.Store.Driver == "memory" {
			errs = append(errs, "store.driver must be sqlite or postgres")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "", "memory":
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
	}

	if c.Batch.MaxConcurrentCandidates < 1 || c.Batch.MaxConcurrentCandidates > 64 {
		errs = append(errs, "batch.max_concurrent_candidates must be between 1 and 64")
	}

	w := c.Matching.Weights
	if w.ARV < 0 || w.Equity < 0 || w.Condition < 0 {
		errs = append(errs, "matching.weights values must be >= 0")
	}

	if err := validate.Struct(c.Governance); err != nil {
		errs = append(errs, "governance: "+err.Error())
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}

	return c.Policy.Validate()
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

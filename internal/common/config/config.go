// internal/common/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	Governance    GovernanceConfig        `mapstructure:"governance"`
	Allocation    AllocationConfig        `mapstructure:"allocation"`
	RateLock      RateLockConfig          `mapstructure:"rate_lock"`
	Oracle        OracleConfig            `mapstructure:"oracle"`
	Notifications NotificationConfig      `mapstructure:"notifications"`
	Audit         AuditConfig             `mapstructure:"audit"`
	HTTP          HTTPConfig              `mapstructure:"http"`
	Logging       LoggingConfig           `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
	AutoMigrate    bool   `mapstructure:"auto_migrate"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	URL       string   `mapstructure:"url"`
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// --- Domain Configuration Sections ---

// GovernanceConfig tunes membership voting. Ratios are decimal strings.
type GovernanceConfig struct {
	ApprovalThreshold     string `mapstructure:"approval_threshold"`
	MaxApplicationTextLen int    `mapstructure:"max_application_text_length"`
}

type AllocationConfig struct {
	CapRatio string `mapstructure:"cap_ratio"`
	// SettlementCurrency is the token allocations are denominated in.
	SettlementCurrency string `mapstructure:"settlement_currency"`
	// PriceCurrency is the oracle quote currency all country rates are based on.
	PriceCurrency string `mapstructure:"price_currency"`
}

// PairPolicy bounds and backs up oracle prices for one currency pair.
type PairPolicy struct {
	Base        string `mapstructure:"base"`
	Quote       string `mapstructure:"quote"`
	MinRate     string `mapstructure:"min_rate"`
	DefaultRate string `mapstructure:"default_rate"`
}

// CountryRate converts an amount in the price currency into a country's local currency.
type CountryRate struct {
	Code     string `mapstructure:"code"`
	Currency string `mapstructure:"currency"`
	Rate     string `mapstructure:"rate"`
}

type RateLockConfig struct {
	TTL              time.Duration `mapstructure:"ttl"`
	QuoteCacheTTL    time.Duration `mapstructure:"quote_cache_ttl"`
	LastKnownGoodTTL time.Duration `mapstructure:"last_known_good_ttl"`
	Pairs            []PairPolicy  `mapstructure:"pairs"`
	Countries        []CountryRate `mapstructure:"countries"`
}

// Pair returns the policy for base/quote, matching case-insensitively.
func (r RateLockConfig) Pair(base, quote string) (PairPolicy, bool) {
	for _, p := range r.Pairs {
		if strings.EqualFold(p.Base, base) && strings.EqualFold(p.Quote, quote) {
			return p, true
		}
	}
	return PairPolicy{}, false
}

type OracleConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// NotificationConfig holds settings for the notification dispatcher.
type NotificationConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Timeout   time.Duration `mapstructure:"timeout"`
	QueueSize int           `mapstructure:"queue_size"`
	Email     struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
	} `mapstructure:"email"`
	SNS struct {
		Enabled  bool   `mapstructure:"enabled"`
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"sns"`
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
}

type AuditConfig struct {
	MirrorEnabled bool          `mapstructure:"mirror_enabled"`
	Index         string        `mapstructure:"index"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// HTTPConfig configures the health, metrics and API listener.
type HTTPConfig struct {
	Address      string  `mapstructure:"address"`
	APIEnabled   bool    `mapstructure:"api_enabled"`
	RateLimitRPS float64 `mapstructure:"rate_limit_rps"`
	RateBurst    int     `mapstructure:"rate_burst"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

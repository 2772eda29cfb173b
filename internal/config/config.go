package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/crm-report/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Enrich     EnrichConfig     `yaml:"enrich" mapstructure:"enrich"`
	Leads      LeadsConfig      `yaml:"leads" mapstructure:"leads"`
	Insight    InsightConfig    `yaml:"insight" mapstructure:"insight"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// SalesforceConfig holds Salesforce JWT auth settings and query tuning.
type SalesforceConfig struct {
	ClientID   string  `yaml:"client_id" mapstructure:"client_id"`
	Username   string  `yaml:"username" mapstructure:"username"`
	KeyPath    string  `yaml:"key_path" mapstructure:"key_path"`
	LoginURL   string  `yaml:"login_url" mapstructure:"login_url"`
	APIVersion string  `yaml:"api_version" mapstructure:"api_version"`
	RateLimit  float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// StoreConfig configures the snapshot database backend.
type StoreConfig struct {
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	Path        string           `yaml:"path" mapstructure:"path"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// EnrichConfig tunes the contract enrichment pipeline.
type EnrichConfig struct {
	BasePrice      float64 `yaml:"base_price" mapstructure:"base_price"`
	ChunkSize      int     `yaml:"chunk_size" mapstructure:"chunk_size"`
	StageTablePath string  `yaml:"stage_table_path" mapstructure:"stage_table_path"`
}

// LeadsConfig configures the lead statistics reports.
type LeadsConfig struct {
	OwnerDepartment string `yaml:"owner_department" mapstructure:"owner_department"`
}

// InsightConfig configures the funnel insight generator.
type InsightConfig struct {
	TargetTablets int `yaml:"target_tablets" mapstructure:"target_tablets"`
	Months        int `yaml:"months" mapstructure:"months"`
}

// ServerConfig configures the report HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CRMREPORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("salesforce.api_version", "v60.0")
	v.SetDefault("salesforce.rate_limit", 10.0)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "crm-report.db")
	v.SetDefault("store.pool.max_conns", 10)
	v.SetDefault("store.pool.min_conns", 2)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("enrich.base_price", 648000)
	v.SetDefault("enrich.chunk_size", 100)
	v.SetDefault("leads.owner_department", "아웃바운드세일즈")
	v.SetDefault("insight.target_tablets", 400)
	v.SetDefault("insight.months", 3)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

	return &cfg, nil
}

// Validate checks that the fields required for the given run mode are set.
// Modes mirror the CLI commands: contracts, leads, metrics, insight, serve,
// and snapshot.
func (c *Config) Validate(mode string) error {
	var problems []string

	check := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	salesforceRequired := func() {
		check(c.Salesforce.ClientID != "", "salesforce.client_id is required")
		check(c.Salesforce.Username != "", "salesforce.username is required")
		check(c.Salesforce.KeyPath != "", "salesforce.key_path is required")
	}

	switch mode {
	case "contracts", "leads", "metrics":
		salesforceRequired()
	case "insight":
		salesforceRequired()
		check(c.Anthropic.Key != "", "anthropic.key is required")
	case "serve":
		salesforceRequired()
		check(c.Server.Port > 0 && c.Server.Port < 65536, "server.port must be > 0")
	case "snapshot":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "postgres":
		check(c.Store.DatabaseURL != "", "store.database_url is required for the postgres driver")
	case "sqlite":
		check(c.Store.Path != "", "store.path is required for the sqlite driver")
	default:
		check(false, "store.driver must be postgres or sqlite")
	}

	check(c.Enrich.ChunkSize > 0 && c.Enrich.ChunkSize <= 100, "enrich.chunk_size must be between 1 and 100")

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
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

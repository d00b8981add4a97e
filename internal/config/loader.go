package config

import (
	"fmt"
	"time"

	"github.com/admitgrid/reconcile/internal/db"
	"github.com/admitgrid/reconcile/internal/matching"
	"github.com/spf13/viper"
)

// Config is everything the server needs at startup. Values come from
// config.yaml with RECONCILE_* environment overrides; anything unset falls
// back to the defaults below.
type Config struct {
	DB       db.Config
	Server   ServerConfig
	Matching matching.Policy
	Audit    AuditConfig
	LogLevel string
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr string
}

// AuditConfig controls audit log retention.
type AuditConfig struct {
	// RetentionKeep is how many of the newest entries survive a prune.
	RetentionKeep int64
	// RetentionInterval is how often the prune runs; zero disables it.
	RetentionInterval time.Duration
}

// Load reads config.yaml from configPath and applies environment overrides.
func Load(configPath string) (Config, error) {
	cfg := Config{
		DB:       db.DefaultConfig(),
		Server:   ServerConfig{Addr: ":8080"},
		Matching: matching.DefaultPolicy(),
		Audit: AuditConfig{
			RetentionKeep:     100000,
			RetentionInterval: 24 * time.Hour,
		},
		LogLevel: "info",
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("RECONCILE")

	for _, key := range []string{
		"database.host", "database.port", "database.user", "database.password",
		"database.dbname", "database.sslmode",
		"server.addr",
		"matching.high_floor", "matching.medium_floor", "matching.tie_band",
		"matching.workers", "matching.top_candidates",
		"matching.registry_retries", "matching.registry_backoff",
		"audit.retention_keep", "audit.retention_interval",
		"log_level",
	} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		fmt.Println("No config.yaml found, using defaults and env vars")
	} else {
		fmt.Println("Loaded config.yaml")
	}

	if v.IsSet("database.host") {
		cfg.DB.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.DB.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.DB.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.DB.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.DB.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.DB.SSLMode = v.GetString("database.sslmode")
	}

	if v.IsSet("server.addr") {
		cfg.Server.Addr = v.GetString("server.addr")
	}

	if v.IsSet("matching.high_floor") {
		cfg.Matching.HighFloor = v.GetFloat64("matching.high_floor")
	}
	if v.IsSet("matching.medium_floor") {
		cfg.Matching.MediumFloor = v.GetFloat64("matching.medium_floor")
	}
	if v.IsSet("matching.tie_band") {
		cfg.Matching.TieBand = v.GetFloat64("matching.tie_band")
	}
	if v.IsSet("matching.workers") {
		cfg.Matching.Workers = v.GetInt("matching.workers")
	}
	if v.IsSet("matching.top_candidates") {
		cfg.Matching.TopCandidates = v.GetInt("matching.top_candidates")
	}
	if v.IsSet("matching.registry_retries") {
		cfg.Matching.RegistryRetries = v.GetInt("matching.registry_retries")
	}
	if v.IsSet("matching.registry_backoff") {
		cfg.Matching.RegistryBackoff = v.GetDuration("matching.registry_backoff")
	}

	if v.IsSet("audit.retention_keep") {
		cfg.Audit.RetentionKeep = v.GetInt64("audit.retention_keep")
	}
	if v.IsSet("audit.retention_interval") {
		cfg.Audit.RetentionInterval = v.GetDuration("audit.retention_interval")
	}

	if v.IsSet("log_level") {
		cfg.LogLevel = v.GetString("log_level")
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	m := cfg.Matching
	if m.HighFloor < m.MediumFloor {
		return fmt.Errorf("matching.high_floor %.2f below matching.medium_floor %.2f", m.HighFloor, m.MediumFloor)
	}
	if m.MediumFloor <= 0 || m.HighFloor > 1.0 {
		return fmt.Errorf("matching floors must sit in (0, 1]: high %.2f medium %.2f", m.HighFloor, m.MediumFloor)
	}
	if m.TieBand < 0 {
		return fmt.Errorf("matching.tie_band must not be negative: %.3f", m.TieBand)
	}
	if cfg.Audit.RetentionKeep < 0 {
		return fmt.Errorf("audit.retention_keep must not be negative: %d", cfg.Audit.RetentionKeep)
	}
	return nil
}

/*
config.go - Application configuration

PURPOSE:
  Loads server, database, logger, receipts and authorization settings from an
  optional YAML file, a .env file and APPROVALS_* environment variables.

PRECEDENCE (highest first):
  1. Environment (APPROVALS_SERVER_PORT, APPROVALS_DATABASE_PATH, ...)
  2. .env in the working directory (loaded into the environment)
  3. YAML file passed with -config
  4. Defaults below

AUTHZ:
  authz.rules lists the roles and positions holding a capability. Capability
  names contain dots, which viper treats as key separators, so rules are a
  list rather than a map. Capabilities not listed keep the built-in rule:

    authz:
      superuser_roles: [admin]
      rules:
        - capability: leave.review
          roles: [hr]
          positions: [supervisor]
        - capability: cash_advance.level2
          roles: [finance]
          positions: [finance_head]

SEE ALSO:
  - approval/authz.go: Policy, DefaultPolicy
  - receipts/receipts.go: receipts.Config
*/
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/warp/approval-engine/approval"
	"github.com/warp/approval-engine/receipts"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "APPROVALS"

// Config holds all application configuration
type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	Database DatabaseConfig  `mapstructure:"database"`
	Logger   LoggerConfig    `mapstructure:"logger"`
	Receipts receipts.Config `mapstructure:"receipts"`
	Authz    AuthzConfig     `mapstructure:"authz"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
}

// Addr returns host:port for http.Server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path        string        `mapstructure:"path"`
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// RuleConfig lists who holds one capability.
type RuleConfig struct {
	Capability string   `mapstructure:"capability"`
	Roles      []string `mapstructure:"roles"`
	Positions  []string `mapstructure:"positions"`
}

// AuthzConfig overrides the built-in authorization policy.
type AuthzConfig struct {
	SuperuserRoles []string     `mapstructure:"superuser_roles"`
	Rules          []RuleConfig `mapstructure:"rules"`
}

// Policy converts the section into an approval.Policy. Capabilities not
// listed keep their built-in rule; superuser roles replace the default set
// only when given.
func (c AuthzConfig) Policy() approval.Policy {
	policy := approval.DefaultPolicy()
	if c.SuperuserRoles != nil {
		policy.SuperuserRoles = c.SuperuserRoles
	}
	for _, rule := range c.Rules {
		policy.Rules[approval.Capability(rule.Capability)] = approval.Rule{
			Roles:     rule.Roles,
			Positions: rule.Positions,
		}
	}
	return policy
}

// Load reads configuration. configPath may be empty, in which case only
// defaults and the environment apply.
func Load(configPath string) (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("server.max_upload_bytes", 10<<20)

	// Database defaults
	v.SetDefault("database.path", "./data/approvals.db")
	v.SetDefault("database.busy_timeout", 5*time.Second)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output_path", "stdout")

	// Receipts defaults
	v.SetDefault("receipts.backend", receipts.BackendLocal)
	v.SetDefault("receipts.local_dir", "./data/receipts")
	v.SetDefault("receipts.s3.region", "us-east-1")
	v.SetDefault("receipts.s3.endpoint", "")
	v.SetDefault("receipts.s3.bucket", "")
	v.SetDefault("receipts.s3.access_key", "")
	v.SetDefault("receipts.s3.secret_key", "")
	v.SetDefault("receipts.s3.use_ssl", false)
	v.SetDefault("receipts.s3.use_path_style", false)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}

	switch c.Logger.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logger.format must be json or console, got %q", c.Logger.Format)
	}

	switch c.Receipts.Backend {
	case receipts.BackendLocal:
		if c.Receipts.LocalDir == "" {
			return errors.New("receipts.local_dir is required for the local backend")
		}
	case receipts.BackendS3:
		if err := c.Receipts.S3.Validate(); err != nil {
			return err
		}
	case receipts.BackendNone:
	default:
		return fmt.Errorf("receipts.backend must be local, s3 or none, got %q", c.Receipts.Backend)
	}

	known := make(map[approval.Capability]bool, len(approval.Capabilities))
	for _, capability := range approval.Capabilities {
		known[capability] = true
	}
	for i, rule := range c.Authz.Rules {
		if !known[approval.Capability(rule.Capability)] {
			return fmt.Errorf("authz.rules[%d]: unknown capability %q", i, rule.Capability)
		}
	}
	return nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/approval-engine/approval"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, 5*time.Second, cfg.Database.BusyTimeout)
	assert.Equal(t, "json", cfg.Logger.Format)
	assert.Equal(t, "local", cfg.Receipts.Backend)
	assert.Equal(t, "./data/receipts", cfg.Receipts.LocalDir)
	assert.NotEmpty(t, cfg.Server.AllowedOrigins)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	path := writeYAML(t, `
server:
  port: 9090
  allowed_origins: ["https://hr.example.com"]
database:
  path: /var/lib/approvals/approvals.db
logger:
  level: debug
  format: console
receipts:
  backend: s3
  s3:
    bucket: receipts
    endpoint: minio:9000
    use_path_style: true
authz:
  superuser_roles: [owner]
  rules:
    - capability: leave.review
      roles: [manager]
`)
	t.Setenv("APPROVALS_SERVER_PORT", "9191")
	t.Setenv("APPROVALS_RECEIPTS_S3_ACCESS_KEY", "key")
	t.Setenv("APPROVALS_RECEIPTS_S3_SECRET_KEY", "secret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port, "environment wins over file")
	assert.Equal(t, []string{"https://hr.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "/var/lib/approvals/approvals.db", cfg.Database.Path)
	assert.Equal(t, "console", cfg.Logger.Format)
	assert.Equal(t, "receipts", cfg.Receipts.S3.Bucket)
	assert.Equal(t, "key", cfg.Receipts.S3.AccessKey)
	assert.True(t, cfg.Receipts.S3.UsePathStyle)

	policy := cfg.Authz.Policy()
	assert.Equal(t, []string{"owner"}, policy.SuperuserRoles)
	assert.Equal(t, []string{"manager"}, policy.Rules[approval.CapLeaveReview].Roles)
	assert.Empty(t, policy.Rules[approval.CapLeaveReview].Positions)
	// untouched capabilities keep the built-in rule
	assert.Equal(t, []string{"finance"}, policy.Rules[approval.CapLiquidationReview].Roles)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return *cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"no database path", func(c *Config) { c.Database.Path = "" }},
		{"bad log format", func(c *Config) { c.Logger.Format = "xml" }},
		{"unknown receipts backend", func(c *Config) { c.Receipts.Backend = "ftp" }},
		{"s3 without bucket", func(c *Config) { c.Receipts.Backend = "s3" }},
		{"unknown capability", func(c *Config) {
			c.Authz.Rules = []RuleConfig{{Capability: "payroll.run", Roles: []string{"hr"}}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := valid()
	cfg.Receipts.Backend = "none"
	assert.NoError(t, cfg.Validate())
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigDefaultsAndFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
database:
  driver: postgres
  host: db
  name: therapy
jwt:
  secret: file-secret-0123456789
booking:
  claim_status: pending
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "pending", cfg.Booking.ClaimStatus)
	assert.Equal(t, "RDV", cfg.Booking.ReferencePrefix)
	assert.Equal(t, "Africa/Casablanca", cfg.Booking.Timezone)
	assert.Equal(t, "host=db port=5432 user=postgres password= dbname=therapy sslmode=disable", cfg.Database.ConnString())
	assert.Equal(t, "postgres", cfg.Database.ToStoreConfig().Driver)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
jwt:
  secret: file-secret-0123456789
`)
	t.Setenv("SLOTS_SERVER_PORT", "7070")
	t.Setenv("SLOTS_JWT_SECRET", "env-secret-abcdefghijk")
	t.Setenv("SLOTS_ADMIN_PASSWORD_HASH", "$2a$10$hash")
	t.Setenv("SLOTS_DATABASE_DSN", "file:test.db")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "env-secret-abcdefghijk", cfg.JWT.Secret)
	assert.Equal(t, "$2a$10$hash", cfg.Admin.PasswordHash)
	assert.Equal(t, "file:test.db", cfg.Database.ConnString())
}

func TestLoadConfigValidation(t *testing.T) {
	cases := map[string]string{
		"missing secret": `
database:
  driver: sqlite3
`,
		"unknown driver": `
jwt:
  secret: file-secret-0123456789
database:
  driver: mysql
`,
		"open claim status": `
jwt:
  secret: file-secret-0123456789
booking:
  claim_status: open
`,
		"bad timezone": `
jwt:
  secret: file-secret-0123456789
booking:
  timezone: Nowhere/Land
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestSQLiteConnStringUsesPath(t *testing.T) {
	c := DatabaseConfig{Driver: "sqlite3", Path: "data/slots.db"}
	assert.Equal(t, "data/slots.db", c.ConnString())
}

func TestLoadSkipsValidation(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
database:
  driver: jsonfile
`))
	require.NoError(t, err)
	assert.Equal(t, "jsonfile", cfg.Database.Driver)
	assert.Equal(t, "data/slots.json", cfg.Database.JSONPath)
	assert.Equal(t, 8081, cfg.Purge.HealthPort)
	assert.Error(t, cfg.Validate())
}

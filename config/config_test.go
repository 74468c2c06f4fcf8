package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(env(nil))
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "supplychain.db", cfg.Database.SQLitePath)
	assert.Equal(t, 3306, cfg.Database.MySQL.Port)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.NotEmpty(t, cfg.Auth.JWTSecret, "development gets a fallback secret")
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Zero(t, cfg.AuditInterval)
	assert.False(t, cfg.EnableScenarios)
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{
		"APP_ENV":          "production",
		"PORT":             "9000",
		"DB_DRIVER":        "MySQL",
		"MYSQL_HOST":       "db",
		"MYSQL_PORT":       "3307",
		"JWT_SECRET":       "s3cret",
		"JWT_TTL":          "2h",
		"CORS_ORIGINS":     "https://a.example, https://b.example,",
		"AUDIT_INTERVAL":   "300",
		"ENABLE_SCENARIOS": "true",
	}))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, DriverMySQL, cfg.Database.Driver)
	assert.Equal(t, "db", cfg.Database.MySQL.Host)
	assert.Equal(t, 3307, cfg.Database.MySQL.Port)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, 5*time.Minute, cfg.AuditInterval)
	assert.True(t, cfg.EnableScenarios)
	assert.False(t, cfg.IsDevelopment())
}

func TestFromEnv_ProductionRequiresSecret(t *testing.T) {
	_, err := FromEnv(env(map[string]string{"APP_ENV": "production"}))

	assert.ErrorContains(t, err, "JWT_SECRET")
}

func TestFromEnv_RejectsUnknownDriver(t *testing.T) {
	_, err := FromEnv(env(map[string]string{"DB_DRIVER": "postgres"}))

	assert.ErrorContains(t, err, "DB_DRIVER")
}

func TestFromEnv_CollectsParseErrors(t *testing.T) {
	_, err := FromEnv(env(map[string]string{
		"PORT":             "eighty",
		"ENABLE_SCENARIOS": "sometimes",
	}))

	require.Error(t, err)
	assert.ErrorContains(t, err, "PORT")
	assert.ErrorContains(t, err, "ENABLE_SCENARIOS")
}

func TestNormalize_FlagOverrides(t *testing.T) {
	// GIVEN: A loaded config whose driver is then overridden by a flag
	// WHEN: The value is mixed case
	// THEN: Normalize lowercases it so Validate accepts it

	cfg, err := FromEnv(env(nil))
	require.NoError(t, err)
	cfg.Database.Driver = " MySQL "

	cfg.Normalize()

	assert.Equal(t, DriverMySQL, cfg.Database.Driver)
	assert.NoError(t, cfg.Validate())
}

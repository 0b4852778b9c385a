package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		StoreDriver:   DriverPebble,
		PebblePath:    "data/pebble",
		AppSecret:     "s",
		IDPHMACSecret: "idp",
		PushMode:      PushHub,
		SweepEnabled:  true,
		SweepCron:     "*/30 * * * *",
		RateLimitRPM:  10,
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir()) // no stray .env
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, ":8088", cfg.HTTPAddr)
	assert.Equal(t, ":50051", cfg.GRPCAddr)
	assert.Equal(t, DriverPebble, cfg.StoreDriver)
	assert.Equal(t, 20*time.Second, cfg.IDPClockSkew)
	assert.Equal(t, int64(10<<20), cfg.MediaMaxBytes)
	assert.Equal(t, "*/30 * * * *", cfg.SweepCron)
	assert.True(t, cfg.SweepEnabled)
	assert.Equal(t, 10, cfg.RateLimitRPM)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	require.NoError(t, os.WriteFile(".env", []byte("APP_SECRET=from-dotenv\nLOG_LEVEL=debug\n"), 0o600))
	// godotenv sets real environment variables; keep them out of other tests
	t.Cleanup(func() {
		_ = os.Unsetenv("APP_SECRET")
		_ = os.Unsetenv("LOG_LEVEL")
	})
	file := filepath.Join(dir, "relaychat.yaml")
	require.NoError(t, os.WriteFile(file, []byte("http_addr: \":9000\"\nstore_driver: MONGO\nmedia_max_bytes: 2MB\n"), 0o600))
	t.Setenv("HTTP_ADDR", ":9100")
	t.Setenv("IDP_CLOCK_SKEW", "5s")

	cfg, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.AppSecret)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":9100", cfg.HTTPAddr, "environment beats the file")
	assert.Equal(t, DriverMongo, cfg.StoreDriver)
	assert.Equal(t, int64(2_000_000), cfg.MediaMaxBytes)
	assert.Equal(t, 5*time.Second, cfg.IDPClockSkew)
}

func TestLoadBadSize(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("MEDIA_MAX_BYTES", "lots")
	_, err := Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	cases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"missing secret", func(c *Config) { c.AppSecret = "" }},
		{"unknown driver", func(c *Config) { c.StoreDriver = "sqlite" }},
		{"mongo without uri", func(c *Config) { c.StoreDriver = DriverMongo }},
		{"postgres without dsn", func(c *Config) { c.StoreDriver = DriverPostgres }},
		{"no identity keys", func(c *Config) { c.IDPHMACSecret = "" }},
		{"gateway without url", func(c *Config) { c.PushMode = PushGateway }},
		{"unknown push mode", func(c *Config) { c.PushMode = "carrier-pigeon" }},
		{"bad cron", func(c *Config) { c.SweepCron = "every tuesday" }},
		{"zero rate", func(c *Config) { c.RateLimitRPM = 0 }},
		{"cert without key", func(c *Config) { c.TLSCert = "cert.pem" }},
		{"tls required", func(c *Config) { c.RequireTLS = true }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := validConfig()
			tc.mutate(c)
			assert.Error(t, c.Validate())
		})
	}

	// a bad cron does not matter when the sweep is off
	c := validConfig()
	c.SweepEnabled = false
	c.SweepCron = "nonsense"
	assert.NoError(t, c.Validate())
}

// Package config loads process configuration from .env, an optional YAML
// file and the environment, in increasing order of precedence.
package config

import (
	"io/fs"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Store drivers.
const (
	DriverPebble   = "pebble"
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
)

// Push modes.
const (
	PushHub     = "hub"
	PushGateway = "gateway"
)

type Config struct {
	Env      string
	LogLevel string
	HTTPAddr string
	GRPCAddr string

	StoreDriver   string
	PebblePath    string
	MongoURI      string
	MongoDatabase string
	DatabaseDSN   string

	AppSecret         string
	IDPIssuer         string
	IDPAudience       string
	IDPHMACSecret     string
	IDPPublicKeysFile string
	IDPClockSkew      time.Duration

	PushMode       string
	PushGatewayURL string

	MediaDir      string
	MediaMaxBytes int64

	SweepEnabled bool
	SweepCron    string

	RateLimitRPM int

	TLSCert    string
	TLSKey     string
	RequireTLS bool
}

var defaults = map[string]any{
	"APP_ENV":              "dev",
	"LOG_LEVEL":            "info",
	"HTTP_ADDR":            ":8088",
	"GRPC_ADDR":            ":50051",
	"STORE_DRIVER":         DriverPebble,
	"PEBBLE_PATH":          "data/pebble",
	"MONGODB_URI":          "",
	"MONGODB_DATABASE":     "relaychat",
	"DATABASE_DSN":         "",
	"APP_SECRET":           "",
	"IDP_ISSUER":           "",
	"IDP_AUDIENCE":         "",
	"IDP_HMAC_SECRET":      "",
	"IDP_PUBLIC_KEYS_FILE": "",
	"IDP_CLOCK_SKEW":       "20s",
	"PUSH_MODE":            PushHub,
	"PUSH_GATEWAY_URL":     "",
	"MEDIA_DIR":            "data/images",
	"MEDIA_MAX_BYTES":      "10MiB",
	"SWEEP_ENABLED":        true,
	"SWEEP_CRON":           "*/30 * * * *",
	"RATE_LIMIT_RPM":       10,
	"TLS_CERT":             "",
	"TLS_KEY":              "",
	"REQUIRE_TLS":          false,
}

// Load reads .env (if present), then file (if non-empty), then the
// environment. It does not validate.
func Load(file string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("could not read .env")
	}

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "config: read %s", file)
		}
	}
	v.AutomaticEnv()

	maxBytes, err := humanize.ParseBytes(v.GetString("MEDIA_MAX_BYTES"))
	if err != nil {
		return nil, errors.Wrap(err, "config: MEDIA_MAX_BYTES")
	}

	return &Config{
		Env:      v.GetString("APP_ENV"),
		LogLevel: v.GetString("LOG_LEVEL"),
		HTTPAddr: v.GetString("HTTP_ADDR"),
		GRPCAddr: v.GetString("GRPC_ADDR"),

		StoreDriver:   strings.ToLower(v.GetString("STORE_DRIVER")),
		PebblePath:    v.GetString("PEBBLE_PATH"),
		MongoURI:      v.GetString("MONGODB_URI"),
		MongoDatabase: v.GetString("MONGODB_DATABASE"),
		DatabaseDSN:   v.GetString("DATABASE_DSN"),

		AppSecret:         v.GetString("APP_SECRET"),
		IDPIssuer:         v.GetString("IDP_ISSUER"),
		IDPAudience:       v.GetString("IDP_AUDIENCE"),
		IDPHMACSecret:     v.GetString("IDP_HMAC_SECRET"),
		IDPPublicKeysFile: v.GetString("IDP_PUBLIC_KEYS_FILE"),
		IDPClockSkew:      v.GetDuration("IDP_CLOCK_SKEW"),

		PushMode:       strings.ToLower(v.GetString("PUSH_MODE")),
		PushGatewayURL: v.GetString("PUSH_GATEWAY_URL"),

		MediaDir:      v.GetString("MEDIA_DIR"),
		MediaMaxBytes: int64(maxBytes),

		SweepEnabled: v.GetBool("SWEEP_ENABLED"),
		SweepCron:    v.GetString("SWEEP_CRON"),

		RateLimitRPM: v.GetInt("RATE_LIMIT_RPM"),

		TLSCert:    v.GetString("TLS_CERT"),
		TLSKey:     v.GetString("TLS_KEY"),
		RequireTLS: v.GetBool("REQUIRE_TLS"),
	}, nil
}

// Validate reports the first setting that would stop the server from
// starting correctly.
func (c *Config) Validate() error {
	if c.AppSecret == "" {
		return errors.New("config: APP_SECRET is required")
	}
	switch c.StoreDriver {
	case DriverPebble:
		if c.PebblePath == "" {
			return errors.New("config: PEBBLE_PATH is required for the pebble driver")
		}
	case DriverMongo:
		if c.MongoURI == "" {
			return errors.New("config: MONGODB_URI is required for the mongo driver")
		}
	case DriverPostgres:
		if c.DatabaseDSN == "" {
			return errors.New("config: DATABASE_DSN is required for the postgres driver")
		}
	default:
		return errors.Errorf("config: unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.IDPHMACSecret == "" && c.IDPPublicKeysFile == "" {
		return errors.New("config: set IDP_HMAC_SECRET or IDP_PUBLIC_KEYS_FILE")
	}
	switch c.PushMode {
	case PushHub:
	case PushGateway:
		if c.PushGatewayURL == "" {
			return errors.New("config: PUSH_GATEWAY_URL is required in gateway mode")
		}
	default:
		return errors.Errorf("config: unknown PUSH_MODE %q", c.PushMode)
	}
	if c.SweepEnabled && !gronx.IsValid(c.SweepCron) {
		return errors.Errorf("config: invalid SWEEP_CRON %q", c.SweepCron)
	}
	if c.RateLimitRPM <= 0 {
		return errors.New("config: RATE_LIMIT_RPM must be positive")
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return errors.New("config: TLS_CERT and TLS_KEY must be set together")
	}
	if c.RequireTLS && c.TLSCert == "" {
		return errors.New("config: REQUIRE_TLS needs TLS_CERT and TLS_KEY")
	}
	return nil
}

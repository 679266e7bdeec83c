// Package config holds the process configuration, loaded once at startup and
// passed into the router and writers. Nothing reads the environment after
// Load returns.
package config

import (
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Backend selection values.
const (
	BackendTimestream = "timestream"
	BackendDynamo     = "dynamodb"
)

// Config is the full process configuration. Environment variable names match
// the deployed fleet (TS_DB, API_TOKEN, ...); the daemon can also read them
// from an optional yaml file.
type Config struct {
	// Backend selects the storage backend: timestream or dynamodb.
	Backend string

	// HTTPAddr is the daemon listen address. Unused in Lambda.
	HTTPAddr string

	// APIToken is the shared ingest secret. APITokenHash may carry it as a
	// bcrypt hash instead, keeping the plaintext out of the environment.
	// With neither set every request is rejected; there is no open-door
	// default.
	APIToken     string
	APITokenHash string

	// Timestream identifiers.
	TimestreamDB             string
	TimestreamTelemetryTable string
	TimestreamEventTable     string

	// DynamoDB table names.
	DynamoTelemetryTable string
	DynamoEventTable     string
}

// Load reads configuration from the environment, overlaid on an optional
// config file (empty path skips the file).
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetDefault("backend", BackendTimestream)
	v.SetDefault("http_addr", ":8087")
	v.SetDefault("api_token", "")
	v.SetDefault("api_token_hash", "")
	v.SetDefault("ts_db", "chamber")
	v.SetDefault("ts_table_telemetry", "telemetry")
	v.SetDefault("ts_table_events", "events")
	v.SetDefault("ddb_table_telemetry", "chamber_telemetry")
	v.SetDefault("ddb_table_events", "chamber_events")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "read config file %s", path)
		}
	}

	cfg := Config{
		Backend:                  v.GetString("backend"),
		HTTPAddr:                 v.GetString("http_addr"),
		APIToken:                 v.GetString("api_token"),
		APITokenHash:             v.GetString("api_token_hash"),
		TimestreamDB:             v.GetString("ts_db"),
		TimestreamTelemetryTable: v.GetString("ts_table_telemetry"),
		TimestreamEventTable:     v.GetString("ts_table_events"),
		DynamoTelemetryTable:     v.GetString("ddb_table_telemetry"),
		DynamoEventTable:         v.GetString("ddb_table_events"),
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Backend {
	case BackendTimestream, BackendDynamo:
	default:
		return errors.Errorf("unknown backend %q (want %s or %s)", c.Backend, BackendTimestream, BackendDynamo)
	}
	return nil
}

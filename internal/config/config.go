package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/viper"
)

// Config defines the application configuration structure
type Config struct {
	Auth        AuthConfig        `mapstructure:"auth"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Broker      BrokerConfig      `mapstructure:"broker"`
	Server      ServerConfig      `mapstructure:"server"`
	Export      ExportConfig      `mapstructure:"export"`
	Log         LogConfig         `mapstructure:"log"`
}

// AuthConfig holds the Fyers app identity and the seed token state.
// Values here fill whatever the credential store does not provide.
type AuthConfig struct {
	ClientID       string `mapstructure:"client_id"`
	ClientIDHash   string `mapstructure:"client_id_hash"`
	RefreshToken   string `mapstructure:"refresh_token"`
	Pin            string `mapstructure:"pin"`
	AccessToken    string `mapstructure:"access_token"`
	TokenExpiresAt int64  `mapstructure:"token_expires_at"`
	AuthBaseURL    string `mapstructure:"auth_base_url"`
}

// CredentialsConfig selects where rotated access tokens are persisted
type CredentialsConfig struct {
	Store          string `mapstructure:"store"`
	Path           string `mapstructure:"path"`
	RedisAddr      string `mapstructure:"redis_addr"`
	RedisPassword  string `mapstructure:"redis_password"`
	RedisDB        int    `mapstructure:"redis_db"`
	RedisKey       string `mapstructure:"redis_key"`
	PersistRetries int    `mapstructure:"persist_retries"`
}

// BrokerConfig defines the upstream endpoints and request tuning
type BrokerConfig struct {
	CatalogURL     string        `mapstructure:"catalog_url"`
	DataBaseURL    string        `mapstructure:"data_base_url"`
	APIBaseURL     string        `mapstructure:"api_base_url"`
	StrikeCount    int           `mapstructure:"strike_count"`
	CatalogTTL     time.Duration `mapstructure:"catalog_ttl"`
	PricingWorkers int           `mapstructure:"pricing_workers"`
	HTTPTimeout    time.Duration `mapstructure:"http_timeout"`
}

// ServerConfig defines the HTTP adapter settings
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// ExportConfig defines snapshot export of priced chains
type ExportConfig struct {
	OutputDir      string `mapstructure:"output_dir"`
	ParquetEnabled bool   `mapstructure:"parquet_enabled"`
	CSVEnabled     bool   `mapstructure:"csv_enabled"`
}

// LogConfig defines logger settings
type LogConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

var envBindings = map[string]string{
	"auth.client_id":              "FYERS_CLIENT_ID",
	"auth.client_id_hash":         "FYERS_CLIENT_ID_HASH",
	"auth.refresh_token":          "FYERS_REFRESH_TOKEN",
	"auth.pin":                    "FYERS_PIN",
	"auth.access_token":           "FYERS_ACCESS_TOKEN",
	"auth.token_expires_at":       "FYERS_TOKEN_EXPIRES_AT",
	"auth.auth_base_url":          "FYERS_AUTH_BASE_URL",
	"credentials.store":           "FYERS_CREDENTIALS_STORE",
	"credentials.path":            "FYERS_CREDENTIALS_PATH",
	"credentials.redis_addr":      "FYERS_REDIS_ADDR",
	"credentials.redis_password":  "FYERS_REDIS_PASSWORD",
	"credentials.redis_db":        "FYERS_REDIS_DB",
	"credentials.redis_key":       "FYERS_REDIS_KEY",
	"credentials.persist_retries": "FYERS_PERSIST_RETRIES",
	"broker.catalog_url":          "FYERS_CATALOG_URL",
	"broker.data_base_url":        "FYERS_DATA_BASE_URL",
	"broker.api_base_url":         "FYERS_API_BASE_URL",
	"broker.strike_count":         "FYERS_STRIKE_COUNT",
	"broker.catalog_ttl":          "FYERS_CATALOG_TTL",
	"broker.pricing_workers":      "FYERS_PRICING_WORKERS",
	"broker.http_timeout":         "FYERS_HTTP_TIMEOUT",
	"server.addr":                 "FYERS_SERVER_ADDR",
	"export.output_dir":           "FYERS_EXPORT_DIR",
	"export.parquet_enabled":      "FYERS_EXPORT_PARQUET",
	"export.csv_enabled":          "FYERS_EXPORT_CSV",
	"log.level":                   "FYERS_LOG_LEVEL",
	"log.encoding":                "FYERS_LOG_ENCODING",
}

// LoadConfig loads configuration from file and overrides with environment variables.
// A missing file is not an error; everything can come from the environment.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("FYERS")

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("error binding %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isNotExist(err) {
			return Config{}, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	// Enable automatic environment variable binding AFTER reading the config file
	// so environment variables take precedence over file values.
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("error unmarshaling config: %w", err)
	}

	applyDefaults(&config)
	return config, nil
}

// applyDefaults sets default values for any config values not set from file or environment
func applyDefaults(config *Config) {
	// Auth defaults
	if config.Auth.AuthBaseURL == "" {
		config.Auth.AuthBaseURL = "https://api-t1.fyers.in/api/v3"
	}

	// Credential store defaults
	if config.Credentials.Store == "" {
		config.Credentials.Store = "env"
	}
	if config.Credentials.Path == "" {
		switch config.Credentials.Store {
		case "yaml":
			config.Credentials.Path = "./credentials.yaml"
		default:
			config.Credentials.Path = "./.env"
		}
	}
	if config.Credentials.RedisAddr == "" {
		config.Credentials.RedisAddr = "localhost:6379"
	}
	if config.Credentials.RedisKey == "" {
		config.Credentials.RedisKey = "fyers:credentials"
	}
	if config.Credentials.PersistRetries == 0 {
		config.Credentials.PersistRetries = 5
	}

	// Broker defaults
	if config.Broker.CatalogURL == "" {
		config.Broker.CatalogURL = "https://public.fyers.in/sym_details/NSE_FO_sym_master.json"
	}
	if config.Broker.DataBaseURL == "" {
		config.Broker.DataBaseURL = "https://api-t1.fyers.in/data"
	}
	if config.Broker.APIBaseURL == "" {
		config.Broker.APIBaseURL = "https://api.fyers.in/api/v2"
	}
	if config.Broker.StrikeCount == 0 {
		config.Broker.StrikeCount = 40
	}
	if config.Broker.PricingWorkers == 0 {
		config.Broker.PricingWorkers = 4
	}
	if config.Broker.HTTPTimeout == 0 {
		config.Broker.HTTPTimeout = 10 * time.Second
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8000"
	}

	if config.Export.OutputDir == "" {
		config.Export.OutputDir = "./snapshots"
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Encoding == "" {
		config.Log.Encoding = "json"
	}
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

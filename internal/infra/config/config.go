package config

// Configuration for the PartyServer client and CLI
// Precedence, lowest first: defaults, config.yaml, .env / environment, command-line flags
// The admin credential is only a fallback here, the credential file in app.data_dir is the usual source

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config - everything the CLI needs to build a client
type Config struct {
	API   APIConfig   `mapstructure:"api"`
	Admin AdminConfig `mapstructure:"admin"`
	App   AppConfig   `mapstructure:"app"`
	Retry RetryConfig `mapstructure:"retry"`
}

// APIConfig - PartyServer endpoint and transport settings
type APIConfig struct {
	BaseURL         string            `mapstructure:"base_url"`
	Host            string            `mapstructure:"host"` // used as https://<host> when base_url is empty
	TimeoutMs       int               `mapstructure:"timeout_ms"`
	Headers         map[string]string `mapstructure:"-"`
	RateLimitRPS    float64           `mapstructure:"rate_limit_rps"` // 0 disables the limiter
	RateLimitBurst  int               `mapstructure:"rate_limit_burst"`
	RouteRateLimits bool              `mapstructure:"route_rate_limits"` // per-route server budgets
	BreakerEnabled  bool              `mapstructure:"breaker_enabled"`
	BreakerFailures uint32            `mapstructure:"breaker_failures"`
	BreakerTimeoutS int               `mapstructure:"breaker_timeout_s"`
	MaxResponseSize int64             `mapstructure:"max_response_size"`
}

// AdminConfig - static admin credential, both fields or neither
type AdminConfig struct {
	Token         string `mapstructure:"token"`
	WalletAddress string `mapstructure:"wallet_address"`
}

// AppConfig - local paths and logging
type AppConfig struct {
	DataDir  string `mapstructure:"data_dir"`
	OutDir   string `mapstructure:"out_dir"` // saved responses
	LogDir   string `mapstructure:"log_dir"`
	LogLevel string `mapstructure:"log_level"`
}

// RetryConfig - caller-side retry used by the CLI, 0 retries by default
type RetryConfig struct {
	MaxRetries  int `mapstructure:"max_retries"`
	BaseDelayMs int `mapstructure:"base_delay_ms"`
	MaxDelayMs  int `mapstructure:"max_delay_ms"`
}

func (a APIConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutMs) * time.Millisecond
}

func (a AdminConfig) IsSet() bool {
	return a.Token != "" && a.WalletAddress != ""
}

func (r RetryConfig) BaseDelay() time.Duration { return time.Duration(r.BaseDelayMs) * time.Millisecond }
func (r RetryConfig) MaxDelay() time.Duration  { return time.Duration(r.MaxDelayMs) * time.Millisecond }

// LoadOptions - where LoadConfig looks
type LoadOptions struct {
	ConfigFile string         // explicit config path, empty searches ./config.yaml
	EnvFile    string         // dotenv file, empty means ".env"
	Flags      *pflag.FlagSet // flags named in FlagKeys are bound when present
	Offline    bool           // skip API checks, for commands that never call the server
}

// FlagKeys maps CLI flag names to config keys
var FlagKeys = map[string]string{
	"base-url":   "api.base_url",
	"timeout-ms": "api.timeout_ms",
	"token":      "admin.token",
	"wallet":     "admin.wallet_address",
	"data-dir":   "app.data_dir",
	"out-dir":    "app.out_dir",
	"log-dir":    "app.log_dir",
	"log-level":  "app.log_level",
	"retries":    "retry.max_retries",
}

// LoadConfig resolves and validates the configuration
func LoadConfig(opts LoadOptions) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	// a missing .env is normal
	_ = godotenv.Load(envFile)

	v := viper.New()
	setDefaults(v)

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("PARTYSERVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setupEnvAliases(v)

	if opts.Flags != nil {
		for name, key := range FlagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// PARTYSERVER_HEADERS="X-A=1,X-B=2" arrives as a string, YAML as a map
	headers, err := parseHeaders(v.Get("api.headers"))
	if err != nil {
		return nil, err
	}
	cfg.API.Headers = headers

	if cfg.API.BaseURL == "" && cfg.API.Host != "" {
		cfg.API.BaseURL = baseURLFromHost(cfg.API.Host)
	}

	if err := validateConfig(&cfg, opts.Offline); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setupEnvAliases(v *viper.Viper) {
	// names used by the web frontend and deployment scripts
	v.BindEnv("api.base_url", "PARTYSERVER_BASE_URL")
	v.BindEnv("api.host", "PARTYSERVER_URL", "NEXT_PUBLIC_PARTYSERVER_URL")
	v.BindEnv("api.timeout_ms", "PARTYSERVER_TIMEOUT_MS")
	v.BindEnv("api.headers", "PARTYSERVER_HEADERS")
	v.BindEnv("api.route_rate_limits", "PARTYSERVER_ROUTE_RATE_LIMITS")

	v.BindEnv("admin.token", "ADMIN_TOKEN")
	v.BindEnv("admin.wallet_address", "ADMIN_WALLET_ADDRESS", "WALLET_ADDRESS")

	v.BindEnv("app.data_dir", "PARTYSERVER_DATA_DIR")
	v.BindEnv("app.out_dir", "PARTYSERVER_OUT_DIR")
	v.BindEnv("app.log_dir", "PARTYSERVER_LOG_DIR")
	v.BindEnv("app.log_level", "LOG_LEVEL")
}

// setDefaults - defaults, timeout matches the client's 5 minute default
func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "")
	v.SetDefault("api.host", "")
	v.SetDefault("api.timeout_ms", 300000)
	v.SetDefault("api.rate_limit_rps", 0)
	v.SetDefault("api.rate_limit_burst", 1)
	v.SetDefault("api.route_rate_limits", false)
	v.SetDefault("api.breaker_enabled", false)
	v.SetDefault("api.breaker_failures", 5)
	v.SetDefault("api.breaker_timeout_s", 30)
	v.SetDefault("api.max_response_size", 10*1024*1024) // 10MB

	v.SetDefault("admin.token", "")
	v.SetDefault("admin.wallet_address", "")

	v.SetDefault("app.data_dir", "data_in")
	v.SetDefault("app.out_dir", "data_out")
	v.SetDefault("app.log_dir", "logs")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("retry.max_retries", 0)
	v.SetDefault("retry.base_delay_ms", 300)
	v.SetDefault("retry.max_delay_ms", 5000)
}

func parseHeaders(raw interface{}) (map[string]string, error) {
	headers := map[string]string{}
	switch h := raw.(type) {
	case nil:
	case string:
		for _, pair := range strings.Split(h, ",") {
			pair = strings.TrimSpace(pair)
			if pair == "" {
				continue
			}
			k, val, ok := strings.Cut(pair, "=")
			if !ok || strings.TrimSpace(k) == "" {
				return nil, fmt.Errorf("invalid header %q, expected Name=value", pair)
			}
			headers[strings.TrimSpace(k)] = strings.TrimSpace(val)
		}
	case map[string]interface{}:
		for k, val := range h {
			headers[k] = fmt.Sprint(val)
		}
	case map[string]string:
		for k, val := range h {
			headers[k] = val
		}
	default:
		return nil, fmt.Errorf("invalid api.headers type %T", raw)
	}
	return headers, nil
}

func baseURLFromHost(host string) string {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if strings.Contains(host, "://") {
		return host
	}
	return "https://" + host
}

func validateConfig(cfg *Config, offline bool) error {
	if (cfg.Admin.Token == "") != (cfg.Admin.WalletAddress == "") {
		return fmt.Errorf("admin.token and admin.wallet_address must be set together")
	}
	if cfg.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative")
	}
	if offline {
		return nil
	}
	if cfg.API.BaseURL == "" {
		return fmt.Errorf("api.base_url (PARTYSERVER_BASE_URL) or api.host (PARTYSERVER_URL) is required")
	}
	u, err := url.Parse(cfg.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api.base_url must be an absolute http(s) URL, got %q", cfg.API.BaseURL)
	}
	if cfg.API.TimeoutMs <= 0 {
		return fmt.Errorf("api.timeout_ms must be positive, got %d", cfg.API.TimeoutMs)
	}
	return nil
}

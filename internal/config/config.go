// Package config defines the configuration of the market replica and its
// validation rules.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by SUDO_* environment variables.
type Config struct {
	Network    string           `toml:"network"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
	Sui        SuiConfig        `toml:"sui"`
	Pyth       PythConfig       `toml:"pyth"`
	Deployment DeploymentConfig `toml:"deployment"`
	Oracle     OracleConfig     `toml:"oracle"`
	Cache      CacheConfig      `toml:"cache"`
	Redis      RedisConfig      `toml:"redis"`
	Supabase   SupabaseConfig   `toml:"supabase"`
	S3         S3Config         `toml:"s3"`
	Server     ServerConfig     `toml:"server"`
	Monitor    MonitorConfig    `toml:"monitor"`
	Notify     NotifyConfig     `toml:"notify"`
}

// SuiConfig holds the ledger RPC endpoint. An empty RPCURL is derived from
// the network.
type SuiConfig struct {
	RPCURL         string   `toml:"rpc_url"`
	Sender         string   `toml:"sender"`
	RequestTimeout duration `toml:"request_timeout"`
}

// PythConfig holds the price service endpoint. A zero UpdateFee is read
// from the oracle state on the ledger.
type PythConfig struct {
	HermesURL      string   `toml:"hermes_url"`
	UpdateFee      uint64   `toml:"update_fee"`
	RequestTimeout duration `toml:"request_timeout"`
}

// DeploymentConfig locates the deployment description files.
type DeploymentConfig struct {
	Dir string `toml:"dir"`
}

// OracleConfig holds the price freshness tolerance.
type OracleConfig struct {
	MaxSkew duration `toml:"max_skew"`
}

// CacheConfig holds the rate cache policy.
type CacheConfig struct {
	RateTTL duration `toml:"rate_ttl"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters.
type SupabaseConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
	// Record runs the valuation recorder inside serve mode.
	Record bool `toml:"record"`
}

// MonitorConfig holds the recorder and archiver schedule.
type MonitorConfig struct {
	Interval     duration `toml:"interval"`
	ArchiveAfter duration `toml:"archive_after"`
	ArchiveCron  string   `toml:"archive_cron"`
}

// NotifyConfig holds operator alert channels. A channel is active when its
// credentials are set. Events limits which alerts are sent; empty sends all.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Enabled reports whether any alert channel is configured.
func (n NotifyConfig) Enabled() bool {
	return (n.TelegramToken != "" && n.TelegramChatID != "") || n.DiscordWebhookURL != ""
}

// duration wraps time.Duration so TOML strings like "5m" decode.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with the values of
// config.example.toml.
func Defaults() Config {
	return Config{
		Network:  "testnet",
		Mode:     "serve",
		LogLevel: "info",
		Sui: SuiConfig{
			Sender:         "0x0000000000000000000000000000000000000000000000000000000000000000",
			RequestTimeout: duration{15 * time.Second},
		},
		Pyth: PythConfig{
			RequestTimeout: duration{10 * time.Second},
		},
		Deployment: DeploymentConfig{Dir: "deployments"},
		Oracle:     OracleConfig{MaxSkew: duration{7 * time.Second}},
		Cache:      CacheConfig{RateTTL: duration{time.Hour}},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		Supabase: SupabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "sudomarket-data",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Monitor: MonitorConfig{
			Interval:     duration{time.Minute},
			ArchiveAfter: duration{30 * 24 * time.Hour},
			ArchiveCron:  "0 3 * * *",
		},
	}
}

var networkEndpoints = map[string]struct{ rpc, hermes string }{
	"mainnet": {"https://fullnode.mainnet.sui.io:443", "https://hermes.pyth.network"},
	"testnet": {"https://fullnode.testnet.sui.io:443", "https://hermes-beta.pyth.network"},
}

// resolveEndpoints fills empty endpoints from the network.
func (c *Config) resolveEndpoints() {
	ep, ok := networkEndpoints[strings.ToLower(c.Network)]
	if !ok {
		return
	}
	if c.Sui.RPCURL == "" {
		c.Sui.RPCURL = ep.rpc
	}
	if c.Pyth.HermesURL == "" {
		c.Pyth.HermesURL = ep.hermes
	}
}

// RedisKeyPrefix namespaces Redis keys per network unless configured.
func (c *Config) RedisKeyPrefix() string {
	if c.Redis.KeyPrefix != "" {
		return c.Redis.KeyPrefix
	}
	return "sudo:" + c.Network + ":"
}

// ArchiveEnabled reports whether both history and cold storage are on.
func (c *Config) ArchiveEnabled() bool { return c.Supabase.Enabled && c.S3.Enabled }

var validModes = map[string]bool{"serve": true, "monitor": true, "once": true}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks Config for invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if _, ok := networkEndpoints[c.Network]; !ok {
		errs = append(errs, fmt.Sprintf("unknown network %q (valid: mainnet, testnet)", c.Network))
	}
	if !validModes[c.Mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, monitor, once)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Sui.RPCURL == "" {
		errs = append(errs, "sui: rpc_url must not be empty")
	}
	if !isAddress(c.Sui.Sender) {
		errs = append(errs, fmt.Sprintf("sui: sender %q is not a 0x address", c.Sui.Sender))
	}
	if c.Sui.RequestTimeout.Duration <= 0 {
		errs = append(errs, "sui: request_timeout must be > 0")
	}
	if c.Pyth.HermesURL == "" {
		errs = append(errs, "pyth: hermes_url must not be empty")
	}
	if c.Deployment.Dir == "" {
		errs = append(errs, "deployment: dir must not be empty")
	}
	if c.Oracle.MaxSkew.Duration <= 0 {
		errs = append(errs, "oracle: max_skew must be > 0")
	}
	if c.Cache.RateTTL.Duration <= 0 {
		errs = append(errs, "cache: rate_ttl must be > 0")
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.Supabase.Enabled {
		if strings.TrimSpace(c.Supabase.DSN) == "" {
			if c.Supabase.Host == "" {
				errs = append(errs, "supabase: host must not be empty (or set supabase.dsn)")
			}
			if c.Supabase.Port <= 0 || c.Supabase.Port > 65535 {
				errs = append(errs, fmt.Sprintf("supabase: port must be 1-65535, got %d", c.Supabase.Port))
			}
			if c.Supabase.Database == "" {
				errs = append(errs, "supabase: database must not be empty")
			}
		}
		if c.Supabase.PoolMaxConns < 1 {
			errs = append(errs, "supabase: pool_max_conns must be >= 1")
		}
		if c.Supabase.PoolMinConns < 0 || c.Supabase.PoolMinConns > c.Supabase.PoolMaxConns {
			errs = append(errs, "supabase: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	if c.Mode == "serve" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
	}
	if c.Mode == "monitor" || (c.Mode == "serve" && c.Server.Record) {
		if !c.Supabase.Enabled {
			errs = append(errs, "supabase: must be enabled to record valuations")
		}
		if c.Monitor.Interval.Duration <= 0 {
			errs = append(errs, "monitor: interval must be > 0")
		}
	}
	if c.Mode == "monitor" && c.ArchiveEnabled() {
		if c.Monitor.ArchiveAfter.Duration <= 0 {
			errs = append(errs, "monitor: archive_after must be > 0")
		}
		if c.Monitor.ArchiveCron == "" {
			errs = append(errs, "monitor: archive_cron must not be empty")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func isAddress(s string) bool {
	hex, ok := strings.CutPrefix(s, "0x")
	if !ok || hex == "" || len(hex) > 64 {
		return false
	}
	for _, r := range hex {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads the TOML file at path over the built-in defaults, applies
// SUDO_* environment overrides and derives network endpoints. A missing
// file is not an error, so a deployment can be configured from the
// environment alone. The result has NOT been validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	cfg.resolveEndpoints()

	return &cfg, nil
}

// applyEnvOverrides overwrites fields whose SUDO_* variable is set and
// non-empty.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Network, "SUDO_NETWORK")
	setStr(&cfg.Mode, "SUDO_MODE")
	setStr(&cfg.LogLevel, "SUDO_LOG_LEVEL")

	setStr(&cfg.Sui.RPCURL, "SUDO_SUI_RPC_URL")
	setStr(&cfg.Sui.Sender, "SUDO_SUI_SENDER")
	setDuration(&cfg.Sui.RequestTimeout, "SUDO_SUI_REQUEST_TIMEOUT")

	setStr(&cfg.Pyth.HermesURL, "SUDO_PYTH_HERMES_URL")
	setUint64(&cfg.Pyth.UpdateFee, "SUDO_PYTH_UPDATE_FEE")
	setDuration(&cfg.Pyth.RequestTimeout, "SUDO_PYTH_REQUEST_TIMEOUT")

	setStr(&cfg.Deployment.Dir, "SUDO_DEPLOYMENT_DIR")
	setDuration(&cfg.Oracle.MaxSkew, "SUDO_ORACLE_MAX_SKEW")
	setDuration(&cfg.Cache.RateTTL, "SUDO_CACHE_RATE_TTL")

	setBool(&cfg.Redis.Enabled, "SUDO_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "SUDO_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SUDO_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SUDO_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SUDO_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SUDO_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SUDO_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "SUDO_REDIS_KEY_PREFIX")

	setBool(&cfg.Supabase.Enabled, "SUDO_SUPABASE_ENABLED")
	setStr(&cfg.Supabase.DSN, "SUDO_SUPABASE_DSN")
	setStr(&cfg.Supabase.DSN, "SUDO_DATABASE_URL") // compatibility alias
	setStr(&cfg.Supabase.Host, "SUDO_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "SUDO_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "SUDO_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "SUDO_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "SUDO_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "SUDO_SUPABASE_SSL_MODE")
	setInt(&cfg.Supabase.PoolMaxConns, "SUDO_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "SUDO_SUPABASE_POOL_MIN_CONNS")
	setBool(&cfg.Supabase.RunMigrations, "SUDO_SUPABASE_RUN_MIGRATIONS")

	setBool(&cfg.S3.Enabled, "SUDO_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "SUDO_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SUDO_S3_REGION")
	setStr(&cfg.S3.Bucket, "SUDO_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SUDO_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SUDO_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SUDO_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SUDO_S3_FORCE_PATH_STYLE")

	setInt(&cfg.Server.Port, "SUDO_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SUDO_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "SUDO_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "SUDO_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "SUDO_SERVER_RATE_WINDOW")
	setBool(&cfg.Server.Record, "SUDO_SERVER_RECORD")

	setDuration(&cfg.Monitor.Interval, "SUDO_MONITOR_INTERVAL")
	setDuration(&cfg.Monitor.ArchiveAfter, "SUDO_MONITOR_ARCHIVE_AFTER")
	setStr(&cfg.Monitor.ArchiveCron, "SUDO_MONITOR_ARCHIVE_CRON")

	setStr(&cfg.Notify.TelegramToken, "SUDO_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SUDO_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SUDO_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SUDO_NOTIFY_EVENTS")
}

// Typed env-var helpers. Each only mutates the target when the variable is
// present, non-empty and parses.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		var cleaned []string
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

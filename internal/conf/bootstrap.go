// Package conf provides configuration management using Viper.
// It supports loading configuration from YAML files and environment variables,
// with CLI flag overrides.
package conf

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Bootstrap is the root configuration of the bot.
type Bootstrap struct {
	Server     *Server
	Data       *Data
	Discord    *Discord
	Moderation *Moderation
	Log        *Log
}

// Server holds transport configuration for the admin surface.
type Server struct {
	Http *Server_HTTP
}

// Server_HTTP configures the admin HTTP server.
type Server_HTTP struct {
	Network string
	Addr    string
	Timeout time.Duration
	// AdminToken guards the admin endpoints. Empty disables auth
	// (local development only).
	AdminToken string
}

// Data holds storage configuration.
type Data struct {
	Database *Data_Database
	Redis    *Data_Redis
}

// Data_Database configures the MySQL connection.
type Data_Database struct {
	Driver string
	Source string
}

// Data_Redis configures the Redis connection.
type Data_Redis struct {
	Network      string
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Discord configures the gateway session.
type Discord struct {
	// Token is the bot token. Required.
	Token string
	// AppID is the application id used to register slash commands.
	AppID string
	// GuildID restricts command registration to one guild when set
	// (instant propagation during development). Empty registers
	// commands globally.
	GuildID string
	// DMTimeout bounds each best-effort DM send.
	DMTimeout time.Duration
}

// Moderation configures the action execution core.
type Moderation struct {
	Lock    *Moderation_Lock
	Breaker *Moderation_Breaker
	Retry   *Moderation_Retry
}

// Moderation_Lock configures the per-user action queues.
type Moderation_Lock struct {
	QueueTimeout     time.Duration
	MaxQueueSize     int
	CleanupThreshold int
}

// Moderation_Breaker configures circuit breaker defaults.
type Moderation_Breaker struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
}

// Moderation_Retry configures retry defaults applied to unknown
// operation types.
type Moderation_Retry struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        bool
}

// Log configures the Zap logger.
type Log struct {
	Level      string
	Format     string
	Env        string
	OutputFile string
}

// NewBootstrap creates and initializes a Bootstrap configuration.
// It loads configuration from the specified config file path, applies defaults,
// and allows overrides from environment variables prefixed with TUX_.
//
// Configuration priority: CLI flags > Environment variables > Config file > Defaults
//
// Required environment variables:
//   - MYSQL_DSN or TUX_DATA_DATABASE_SOURCE: MySQL connection string
//   - DISCORD_TOKEN or TUX_DISCORD_TOKEN: Discord bot token
func NewBootstrap(configPath string) (*Bootstrap, error) {
	v := viper.New()

	setDefaults(v)

	// Enable environment variable support with TUX_ prefix
	v.SetEnvPrefix("TUX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Allow direct environment variable names (without TUX_ prefix) for compatibility
	_ = v.BindEnv("data.database.source", "MYSQL_DSN", "TUX_DATA_DATABASE_SOURCE")
	_ = v.BindEnv("data.redis.addr", "TUX_DATA_REDIS_ADDR")
	_ = v.BindEnv("discord.token", "DISCORD_TOKEN", "TUX_DISCORD_TOKEN")
	_ = v.BindEnv("discord.app_id", "DISCORD_APP_ID", "TUX_DISCORD_APP_ID")
	_ = v.BindEnv("server.http.admin_token", "ADMIN_TOKEN", "TUX_SERVER_HTTP_ADMIN_TOKEN")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	bc := &Bootstrap{
		Server: &Server{
			Http: &Server_HTTP{
				Network:    v.GetString("server.http.network"),
				Addr:       v.GetString("server.http.addr"),
				Timeout:    v.GetDuration("server.http.timeout"),
				AdminToken: v.GetString("server.http.admin_token"),
			},
		},
		Data: &Data{
			Database: &Data_Database{
				Driver: v.GetString("data.database.driver"),
				Source: v.GetString("data.database.source"),
			},
			Redis: &Data_Redis{
				Network:      v.GetString("data.redis.network"),
				Addr:         v.GetString("data.redis.addr"),
				ReadTimeout:  v.GetDuration("data.redis.read_timeout"),
				WriteTimeout: v.GetDuration("data.redis.write_timeout"),
			},
		},
		Discord: &Discord{
			Token:     v.GetString("discord.token"),
			AppID:     v.GetString("discord.app_id"),
			GuildID:   v.GetString("discord.guild_id"),
			DMTimeout: v.GetDuration("discord.dm_timeout"),
		},
		Moderation: &Moderation{
			Lock: &Moderation_Lock{
				QueueTimeout:     v.GetDuration("moderation.lock.queue_timeout"),
				MaxQueueSize:     v.GetInt("moderation.lock.max_queue_size"),
				CleanupThreshold: v.GetInt("moderation.lock.cleanup_threshold"),
			},
			Breaker: &Moderation_Breaker{
				FailureThreshold: v.GetInt("moderation.breaker.failure_threshold"),
				RecoveryTimeout:  v.GetDuration("moderation.breaker.recovery_timeout"),
			},
			Retry: &Moderation_Retry{
				MaxAttempts:   v.GetInt("moderation.retry.max_attempts"),
				BaseDelay:     v.GetDuration("moderation.retry.base_delay"),
				MaxDelay:      v.GetDuration("moderation.retry.max_delay"),
				BackoffFactor: v.GetFloat64("moderation.retry.backoff_factor"),
				Jitter:        v.GetBool("moderation.retry.jitter"),
			},
		},
		Log: &Log{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			Env:        v.GetString("log.env"),
			OutputFile: v.GetString("log.output_file"),
		},
	}

	if err := Validate(bc); err != nil {
		return nil, err
	}

	return bc, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.http.network", "tcp")
	v.SetDefault("server.http.addr", ":8080")
	v.SetDefault("server.http.timeout", 30*time.Second)

	// Data defaults
	v.SetDefault("data.database.driver", "mysql")
	// Note: data.database.source (MYSQL_DSN) is required from environment

	v.SetDefault("data.redis.network", "tcp")
	v.SetDefault("data.redis.addr", "127.0.0.1:6379")
	v.SetDefault("data.redis.read_timeout", 200*time.Millisecond)
	v.SetDefault("data.redis.write_timeout", 200*time.Millisecond)

	// Discord defaults
	// Note: discord.token (DISCORD_TOKEN) is required from environment
	v.SetDefault("discord.dm_timeout", 5*time.Second)

	// Moderation defaults
	v.SetDefault("moderation.lock.queue_timeout", 30*time.Second)
	v.SetDefault("moderation.lock.max_queue_size", 10)
	v.SetDefault("moderation.lock.cleanup_threshold", 100)

	v.SetDefault("moderation.breaker.failure_threshold", 5)
	v.SetDefault("moderation.breaker.recovery_timeout", 60*time.Second)

	v.SetDefault("moderation.retry.max_attempts", 3)
	v.SetDefault("moderation.retry.base_delay", time.Second)
	v.SetDefault("moderation.retry.max_delay", 30*time.Second)
	v.SetDefault("moderation.retry.backoff_factor", 2.0)
	v.SetDefault("moderation.retry.jitter", true)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks that all required configuration fields are present and valid.
// It returns an error listing all missing required fields.
func Validate(bc *Bootstrap) error {
	var missingFields []string

	if bc.Data == nil || bc.Data.Database == nil || bc.Data.Database.Source == "" {
		missingFields = append(missingFields, "data.database.source (MYSQL_DSN)")
	}

	if bc.Discord == nil || bc.Discord.Token == "" {
		missingFields = append(missingFields, "discord.token (DISCORD_TOKEN)")
	}

	if bc.Discord == nil || bc.Discord.AppID == "" {
		missingFields = append(missingFields, "discord.app_id (DISCORD_APP_ID)")
	}

	if len(missingFields) > 0 {
		return fmt.Errorf("missing required configuration fields: %s", strings.Join(missingFields, ", "))
	}

	return nil
}

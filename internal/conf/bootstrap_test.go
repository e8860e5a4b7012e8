package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))
	return configPath
}

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MYSQL_DSN", "user:pass@tcp(localhost:3306)/tux")
	t.Setenv("DISCORD_TOKEN", "test-bot-token")
	t.Setenv("DISCORD_APP_ID", "123456789012345678")
}

func TestNewBootstrap_Defaults(t *testing.T) {
	configPath := writeConfig(t, `server:
  http:
    addr: :8080
data:
  database:
    driver: mysql
  redis:
    addr: 127.0.0.1:6379
`)
	setRequiredEnv(t)

	bc, err := NewBootstrap(configPath)
	require.NoError(t, err)
	require.NotNil(t, bc)

	assert.Equal(t, "tcp", bc.Server.Http.Network)
	assert.Equal(t, ":8080", bc.Server.Http.Addr)
	assert.Equal(t, 30*time.Second, bc.Server.Http.Timeout)

	assert.Equal(t, "mysql", bc.Data.Database.Driver)
	assert.Equal(t, "127.0.0.1:6379", bc.Data.Redis.Addr)
	assert.Equal(t, 200*time.Millisecond, bc.Data.Redis.ReadTimeout)

	assert.Equal(t, 5*time.Second, bc.Discord.DMTimeout)

	assert.Equal(t, 30*time.Second, bc.Moderation.Lock.QueueTimeout)
	assert.Equal(t, 10, bc.Moderation.Lock.MaxQueueSize)
	assert.Equal(t, 100, bc.Moderation.Lock.CleanupThreshold)
	assert.Equal(t, 5, bc.Moderation.Breaker.FailureThreshold)
	assert.Equal(t, 60*time.Second, bc.Moderation.Breaker.RecoveryTimeout)
	assert.Equal(t, 3, bc.Moderation.Retry.MaxAttempts)
	assert.Equal(t, time.Second, bc.Moderation.Retry.BaseDelay)
	assert.Equal(t, 30*time.Second, bc.Moderation.Retry.MaxDelay)
	assert.Equal(t, 2.0, bc.Moderation.Retry.BackoffFactor)
	assert.True(t, bc.Moderation.Retry.Jitter)

	assert.Equal(t, "info", bc.Log.Level)
	assert.Equal(t, "json", bc.Log.Format)
}

func TestNewBootstrap_FileValues(t *testing.T) {
	configPath := writeConfig(t, `server:
  http:
    addr: :9090
    timeout: 10s
discord:
  guild_id: "555"
  dm_timeout: 2s
moderation:
  lock:
    queue_timeout: 15s
    max_queue_size: 3
  breaker:
    failure_threshold: 2
    recovery_timeout: 5s
  retry:
    max_attempts: 5
    base_delay: 500ms
    backoff_factor: 3.0
    jitter: false
log:
  level: debug
`)
	setRequiredEnv(t)

	bc, err := NewBootstrap(configPath)
	require.NoError(t, err)

	assert.Equal(t, ":9090", bc.Server.Http.Addr)
	assert.Equal(t, 10*time.Second, bc.Server.Http.Timeout)
	assert.Equal(t, "555", bc.Discord.GuildID)
	assert.Equal(t, 2*time.Second, bc.Discord.DMTimeout)
	assert.Equal(t, 15*time.Second, bc.Moderation.Lock.QueueTimeout)
	assert.Equal(t, 3, bc.Moderation.Lock.MaxQueueSize)
	assert.Equal(t, 2, bc.Moderation.Breaker.FailureThreshold)
	assert.Equal(t, 5*time.Second, bc.Moderation.Breaker.RecoveryTimeout)
	assert.Equal(t, 5, bc.Moderation.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, bc.Moderation.Retry.BaseDelay)
	assert.Equal(t, 3.0, bc.Moderation.Retry.BackoffFactor)
	assert.False(t, bc.Moderation.Retry.Jitter)
	assert.Equal(t, "debug", bc.Log.Level)
}

func TestNewBootstrap_EnvOverrides(t *testing.T) {
	configPath := writeConfig(t, `data:
  redis:
    addr: 127.0.0.1:6379
`)
	setRequiredEnv(t)
	t.Setenv("TUX_DATA_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("ADMIN_TOKEN", "s3cret")

	bc, err := NewBootstrap(configPath)
	require.NoError(t, err)

	assert.Equal(t, "redis.internal:6380", bc.Data.Redis.Addr)
	assert.Equal(t, "s3cret", bc.Server.Http.AdminToken)
	assert.Equal(t, "test-bot-token", bc.Discord.Token)
	assert.Equal(t, "123456789012345678", bc.Discord.AppID)
}

func TestNewBootstrap_MissingRequired(t *testing.T) {
	configPath := writeConfig(t, `data:
  redis:
    addr: 127.0.0.1:6379
`)
	// No MYSQL_DSN, DISCORD_TOKEN or DISCORD_APP_ID set.
	os.Unsetenv("MYSQL_DSN")
	os.Unsetenv("DISCORD_TOKEN")
	os.Unsetenv("DISCORD_APP_ID")

	_, err := NewBootstrap(configPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data.database.source")
	assert.Contains(t, err.Error(), "discord.token")
	assert.Contains(t, err.Error(), "discord.app_id")
}

func TestNewBootstrap_ConfigFileNotFound(t *testing.T) {
	setRequiredEnv(t)
	_, err := NewBootstrap("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestNewBootstrap_EmptyConfigPath(t *testing.T) {
	// Env-only configuration is valid; the config file is optional.
	setRequiredEnv(t)

	bc, err := NewBootstrap("")
	require.NoError(t, err)
	assert.Equal(t, "user:pass@tcp(localhost:3306)/tux", bc.Data.Database.Source)
	assert.Equal(t, ":8080", bc.Server.Http.Addr)
}

func TestValidate(t *testing.T) {
	valid := &Bootstrap{
		Data: &Data{
			Database: &Data_Database{Source: "dsn"},
		},
		Discord: &Discord{Token: "tok", AppID: "123"},
	}
	assert.NoError(t, Validate(valid))

	assert.Error(t, Validate(&Bootstrap{}))

	noToken := &Bootstrap{
		Data:    &Data{Database: &Data_Database{Source: "dsn"}},
		Discord: &Discord{AppID: "123"},
	}
	err := Validate(noToken)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discord.token")
}

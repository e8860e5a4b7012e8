package bot

import (
	"context"
	"time"

	"tux/internal/data"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

// cooldownWindow is the per-moderator, per-command spacing enforced
// across all bot instances.
const cooldownWindow = 3 * time.Second

// Cooldowns rate-limits command invocations through Redis so the
// window holds across restarts and replicas. Degrades open: without
// Redis, or on any Redis error, commands are allowed.
type Cooldowns struct {
	rdb    *redis.Client
	logger *log.Helper
}

// NewCooldowns creates the cooldown tracker.
func NewCooldowns(d *data.Data, logger log.Logger) *Cooldowns {
	return &Cooldowns{
		rdb:    d.GetRedisClient(),
		logger: log.NewHelper(logger),
	}
}

// Allow reports whether the moderator may run the command now, and
// claims the window if so.
func (c *Cooldowns) Allow(ctx context.Context, guildID, moderatorID, command string) bool {
	if c.rdb == nil {
		return true
	}

	key := data.BuildCacheKey(data.CacheKeyCooldown, guildID, moderatorID, command)
	ok, err := c.rdb.SetNX(ctx, key, 1, cooldownWindow).Result()
	if err != nil {
		c.logger.Warnw("cooldown check failed, allowing command",
			"guild_id", guildID,
			"moderator_id", moderatorID,
			"command", command,
			"error", err)
		return true
	}
	return ok
}

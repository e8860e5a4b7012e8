package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tux/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GuildConfig is the GORM model for the guild_configs table.
type GuildConfig struct {
	GuildID           string    `gorm:"primaryKey;column:guild_id;size:20"`
	ModLogChannelID   string    `gorm:"column:mod_log_channel_id;size:20"`
	AuditLogChannelID string    `gorm:"column:audit_log_channel_id;size:20"`
	JailRoleID        string    `gorm:"column:jail_role_id;size:20"`
	JailChannelID     string    `gorm:"column:jail_channel_id;size:20"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (GuildConfig) TableName() string {
	return "guild_configs"
}

// LogChannel returns the configured channel id for a log type, or
// empty when none is set.
func (g *GuildConfig) LogChannel(logType model.LogType) string {
	switch logType {
	case model.LogMod:
		return g.ModLogChannelID
	case model.LogAudit:
		return g.AuditLogChannelID
	default:
		return ""
	}
}

// PermissionRank is the GORM model for the permission_ranks table.
// Each row grants one rank to one role; a member's rank is the highest
// across their roles.
type PermissionRank struct {
	ID        int64     `gorm:"primaryKey;column:id"`
	GuildID   string    `gorm:"column:guild_id;size:20;not null;uniqueIndex:uq_guild_role,priority:1"`
	RoleID    string    `gorm:"column:role_id;size:20;not null;uniqueIndex:uq_guild_role,priority:2"`
	Rank      int       `gorm:"column:rank;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (PermissionRank) TableName() string {
	return "permission_ranks"
}

// GuildConfigRepo implements biz.GuildConfigRepo and biz.Ranker on
// MySQL with a read-through cache.
type GuildConfigRepo struct {
	db     *gorm.DB
	cache  CacheClient
	logger *log.Helper
}

// NewGuildConfigRepo creates a new guild config repository.
func NewGuildConfigRepo(db *gorm.DB, cache CacheClient, logger log.Logger) *GuildConfigRepo {
	return &GuildConfigRepo{
		db:     db,
		cache:  cache,
		logger: log.NewHelper(logger),
	}
}

// GetGuildConfig returns the guild's configuration, or nil when the
// guild has never been configured. Cache failures degrade to the
// database.
func (r *GuildConfigRepo) GetGuildConfig(ctx context.Context, guildID string) (*GuildConfig, error) {
	cacheKey := BuildCacheKey(CacheKeyGuild, guildID)

	var cached GuildConfig
	if err := r.cache.Get(ctx, cacheKey, &cached); err == nil {
		return &cached, nil
	} else if !errors.Is(err, ErrCacheNotFound) {
		r.logger.Warnw("guild config cache read failed", "guild_id", guildID, "error", err)
	}

	var cfg GuildConfig
	err := r.db.WithContext(ctx).Where("guild_id = ?", guildID).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get guild config: %w", err)
	}

	if err := r.cache.Set(ctx, cacheKey, &cfg, TTLGuild); err != nil {
		r.logger.Warnw("guild config cache write failed", "guild_id", guildID, "error", err)
	}
	return &cfg, nil
}

// UpsertGuildConfig creates or replaces the guild's configuration and
// invalidates the cache.
func (r *GuildConfigRepo) UpsertGuildConfig(ctx context.Context, cfg *GuildConfig) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "guild_id"}},
			UpdateAll: true,
		}).
		Create(cfg).Error
	if err != nil {
		return fmt.Errorf("failed to upsert guild config: %w", err)
	}

	r.invalidate(ctx, cfg.GuildID)
	return nil
}

// SetLogChannel routes one log type to a channel.
func (r *GuildConfigRepo) SetLogChannel(ctx context.Context, guildID string, logType model.LogType, channelID string) error {
	var column string
	switch logType {
	case model.LogMod:
		column = "mod_log_channel_id"
	case model.LogAudit:
		column = "audit_log_channel_id"
	default:
		return fmt.Errorf("unknown log type: %s", logType)
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "guild_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{column: channelID}),
		}).
		Create(&GuildConfig{GuildID: guildID, ModLogChannelID: pick(logType == model.LogMod, channelID), AuditLogChannelID: pick(logType == model.LogAudit, channelID)}).Error
	if err != nil {
		return fmt.Errorf("failed to set log channel: %w", err)
	}

	r.invalidate(ctx, guildID)
	return nil
}

func pick(ok bool, v string) string {
	if ok {
		return v
	}
	return ""
}

// RankForRoles implements biz.Ranker: the highest rank granted by any
// of the given roles, 0 when none is ranked.
func (r *GuildConfigRepo) RankForRoles(ctx context.Context, guildID string, roleIDs []string) (int, error) {
	if len(roleIDs) == 0 {
		return 0, nil
	}

	var rank *int
	err := r.db.WithContext(ctx).
		Model(&PermissionRank{}).
		Select("MAX(`rank`)").
		Where("guild_id = ? AND role_id IN ?", guildID, roleIDs).
		Scan(&rank).Error
	if err != nil {
		return 0, fmt.Errorf("failed to query permission ranks: %w", err)
	}
	if rank == nil {
		return 0, nil
	}
	return *rank, nil
}

// SetRank grants a rank to a role.
func (r *GuildConfigRepo) SetRank(ctx context.Context, guildID, roleID string, rank int) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "guild_id"}, {Name: "role_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"rank": rank}),
		}).
		Create(&PermissionRank{GuildID: guildID, RoleID: roleID, Rank: rank}).Error
	if err != nil {
		return fmt.Errorf("failed to set permission rank: %w", err)
	}
	return nil
}

func (r *GuildConfigRepo) invalidate(ctx context.Context, guildID string) {
	if err := r.cache.Delete(ctx, BuildCacheKey(CacheKeyGuild, guildID)); err != nil {
		r.logger.Warnw("guild config cache invalidation failed", "guild_id", guildID, "error", err)
	}
}

package biz

import (
	"context"
	"fmt"

	"tux/internal/data"
	"tux/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// GuildConfigUseCase implements guild configuration business logic:
// log channel routing, jail role/channel settings and permission rank
// lookups for command gating.
type GuildConfigUseCase struct {
	repo   GuildConfigRepo
	ranker Ranker
	logger *log.Helper
}

// NewGuildConfigUseCase creates a new guild config use case.
func NewGuildConfigUseCase(repo GuildConfigRepo, ranker Ranker, logger log.Logger) *GuildConfigUseCase {
	return &GuildConfigUseCase{
		repo:   repo,
		ranker: ranker,
		logger: log.NewHelper(logger),
	}
}

// Config returns the guild's configuration, or an empty config when
// the guild has never been configured.
func (uc *GuildConfigUseCase) Config(ctx context.Context, guildID string) (*data.GuildConfig, error) {
	cfg, err := uc.repo.GetGuildConfig(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to load guild config: %w", err)
	}
	if cfg == nil {
		cfg = &data.GuildConfig{GuildID: guildID}
	}
	return cfg, nil
}

// SetLogChannel routes a log type to a channel for the guild.
func (uc *GuildConfigUseCase) SetLogChannel(ctx context.Context, guildID string, logType model.LogType, channelID string) error {
	if err := uc.repo.SetLogChannel(ctx, guildID, logType, channelID); err != nil {
		return fmt.Errorf("failed to set %s log channel: %w", logType, err)
	}
	uc.logger.Infow("log channel configured",
		"guild_id", guildID,
		"log_type", logType,
		"channel_id", channelID)
	return nil
}

// SetJail configures the guild's jail role and channel.
func (uc *GuildConfigUseCase) SetJail(ctx context.Context, guildID, roleID, channelID string) error {
	cfg, err := uc.Config(ctx, guildID)
	if err != nil {
		return err
	}
	cfg.JailRoleID = roleID
	cfg.JailChannelID = channelID
	if err := uc.repo.UpsertGuildConfig(ctx, cfg); err != nil {
		return fmt.Errorf("failed to save jail config: %w", err)
	}
	return nil
}

// MemberRank resolves the highest permission rank granted by any of
// the member's roles. Members with no ranked role get rank 0.
func (uc *GuildConfigUseCase) MemberRank(ctx context.Context, guildID string, roleIDs []string) (int, error) {
	rank, err := uc.ranker.RankForRoles(ctx, guildID, roleIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve permission rank: %w", err)
	}
	return rank, nil
}

// CheckRank verifies the member clears the required rank for a
// command. Returns an error carrying a user-presentable message when
// the member falls short.
func (uc *GuildConfigUseCase) CheckRank(ctx context.Context, guildID string, roleIDs []string, required int) error {
	if required <= 0 {
		return nil
	}
	rank, err := uc.MemberRank(ctx, guildID, roleIDs)
	if err != nil {
		return err
	}
	if rank < required {
		return fmt.Errorf("permission rank %d required, you have %d", required, rank)
	}
	return nil
}

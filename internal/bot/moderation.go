package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tux/internal/biz"
	"tux/internal/model"

	"github.com/bwmarrin/discordgo"
)

// Discord caps member timeouts at 28 days.
const maxTimeout = 28 * 24 * time.Hour

func (b *Bot) handleBan(ctx context.Context, i *discordgo.InteractionCreate, inv model.Invocation) error {
	opts := options(i)
	targetID := userOptID(opts, "user")
	reason := stringOpt(opts, "reason")
	purgeDays := int(intOpt(opts, "purge_days", 0))

	return b.executor.ExecuteModAction(ctx, biz.ModActionRequest{
		Invocation: inv,
		CaseType:   model.CaseBan,
		TargetID:   targetID,
		Reason:     reason,
		Silent:     boolOpt(opts, "silent"),
		Actions:    []model.Action{b.gateway.BanAction(inv.GuildID, targetID, reason, purgeDays)},
	})
}

func (b *Bot) handleTempBan(ctx context.Context, i *discordgo.InteractionCreate, inv model.Invocation) error {
	opts := options(i)
	targetID := userOptID(opts, "user")
	reason := stringOpt(opts, "reason")

	duration, err := parseDuration(stringOpt(opts, "duration"))
	if err != nil {
		b.embeds.SendErrorResponse(ctx, inv, "Invalid duration. Use forms like 30m, 12h or 7d.")
		return nil
	}
	expiresAt := time.Now().UTC().Add(duration)

	return b.executor.ExecuteModAction(ctx, biz.ModActionRequest{
		Invocation: inv,
		CaseType:   model.CaseTempBan,
		TargetID:   targetID,
		Reason:     reason,
		Silent:     boolOpt(opts, "silent"),
		Duration:   stringOpt(opts, "duration"),
		ExpiresAt:  &expiresAt,
		Actions:    []model.Action{b.gateway.BanAction(inv.GuildID, targetID, reason, 0)},
	})
}

func (b *Bot) handleUnban(ctx context.Context, i *discordgo.InteractionCreate, inv model.Invocation) error {
	opts := options(i)
	targetID := userOptID(opts, "user")

	return b.executor.ExecuteModAction(ctx, biz.ModActionRequest{
		Invocation: inv,
		CaseType:   model.CaseUnban,
		TargetID:   targetID,
		Reason:     stringOpt(opts, "reason"),
		// Unbanned users share no guild with the bot; a DM can't be
		// delivered anyway.
		Silent:  true,
		Actions: []model.Action{b.gateway.UnbanAction(inv.GuildID, targetID)},
	})
}

func (b *Bot) handleKick(ctx context.Context, i *discordgo.InteractionCreate, inv model.Invocation) error {
	opts := options(i)
	targetID := userOptID(opts, "user")
	reason := stringOpt(opts, "reason")

	return b.executor.ExecuteModAction(ctx, biz.ModActionRequest{
		Invocation: inv,
		CaseType:   model.CaseKick,
		TargetID:   targetID,
		Reason:     reason,
		Silent:     boolOpt(opts, "silent"),
		Actions:    []model.Action{b.gateway.KickAction(inv.GuildID, targetID, reason)},
	})
}

func (b *Bot) handleTimeout(ctx context.Context, i *discordgo.InteractionCreate, inv model.Invocation) error {
	opts := options(i)
	targetID := userOptID(opts, "user")

	duration, err := parseDuration(stringOpt(opts, "duration"))
	if err != nil || duration > maxTimeout {
		b.embeds.SendErrorResponse(ctx, inv, "Invalid duration. Timeouts go up to 28 days, e.g. 30m, 12h, 7d.")
		return nil
	}
	until := time.Now().UTC().Add(duration)

	return b.executor.ExecuteModAction(ctx, biz.ModActionRequest{
		Invocation: inv,
		CaseType:   model.CaseTimeout,
		TargetID:   targetID,
		Reason:     stringOpt(opts, "reason"),
		Silent:     boolOpt(opts, "silent"),
		Duration:   stringOpt(opts, "duration"),
		ExpiresAt:  &until,
		Actions:    []model.Action{b.gateway.TimeoutAction(inv.GuildID, targetID, until)},
	})
}

func (b *Bot) handleUntimeout(ctx context.Context, i *discordgo.InteractionCreate, inv model.Invocation) error {
	opts := options(i)
	targetID := userOptID(opts, "user")

	return b.executor.ExecuteModAction(ctx, biz.ModActionRequest{
		Invocation: inv,
		CaseType:   model.CaseUntimeout,
		TargetID:   targetID,
		Reason:     stringOpt(opts, "reason"),
		Actions:    []model.Action{b.gateway.UntimeoutAction(inv.GuildID, targetID)},
	})
}

func (b *Bot) handleWarn(ctx context.Context, i *discordgo.InteractionCreate, inv model.Invocation) error {
	opts := options(i)
	targetID := userOptID(opts, "user")

	// A warning has no Discord-side mutation; the "action" is the DM
	// plus the case record. A no-op action keeps it on the same
	// executor path.
	noop := model.NewAction("warn", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, nil
	})

	return b.executor.ExecuteModAction(ctx, biz.ModActionRequest{
		Invocation: inv,
		CaseType:   model.CaseWarn,
		TargetID:   targetID,
		Reason:     stringOpt(opts, "reason"),
		Silent:     boolOpt(opts, "silent"),
		Actions:    []model.Action{noop},
	})
}

func (b *Bot) handleJail(ctx context.Context, i *discordgo.InteractionCreate, inv model.Invocation) error {
	opts := options(i)
	targetID := userOptID(opts, "user")

	cfg, err := b.guilds.Config(ctx, inv.GuildID)
	if err != nil {
		return err
	}
	if cfg.JailRoleID == "" {
		b.embeds.SendErrorResponse(ctx, inv, "No jail role is configured for this server.")
		return nil
	}

	return b.executor.ExecuteModAction(ctx, biz.ModActionRequest{
		Invocation: inv,
		CaseType:   model.CaseJail,
		TargetID:   targetID,
		Reason:     stringOpt(opts, "reason"),
		Silent:     boolOpt(opts, "silent"),
		Actions:    []model.Action{b.gateway.AddRoleAction(inv.GuildID, targetID, cfg.JailRoleID)},
	})
}

func (b *Bot) handleUnjail(ctx context.Context, i *discordgo.InteractionCreate, inv model.Invocation) error {
	opts := options(i)
	targetID := userOptID(opts, "user")

	cfg, err := b.guilds.Config(ctx, inv.GuildID)
	if err != nil {
		return err
	}
	if cfg.JailRoleID == "" {
		b.embeds.SendErrorResponse(ctx, inv, "No jail role is configured for this server.")
		return nil
	}

	return b.executor.ExecuteModAction(ctx, biz.ModActionRequest{
		Invocation: inv,
		CaseType:   model.CaseUnjail,
		TargetID:   targetID,
		Reason:     stringOpt(opts, "reason"),
		Actions:    []model.Action{b.gateway.RemoveRoleAction(inv.GuildID, targetID, cfg.JailRoleID)},
	})
}

// parseDuration extends time.ParseDuration with day and week suffixes,
// the forms moderators actually type.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	multiplier := time.Duration(0)
	switch {
	case strings.HasSuffix(s, "d"):
		multiplier = 24 * time.Hour
	case strings.HasSuffix(s, "w"):
		multiplier = 7 * 24 * time.Hour
	}
	if multiplier > 0 {
		n, err := strconv.ParseFloat(s[:len(s)-1], 64)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(n * float64(multiplier)), nil
	}

	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

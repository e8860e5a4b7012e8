package discord

import (
	"context"
	"time"

	"tux/internal/model"

	"github.com/bwmarrin/discordgo"
)

// done is the degenerate success value for REST calls that return no
// body. NewAction still checks it so a batched result of the wrong
// shape is caught.
type done struct{}

// Gateway builds the Discord-side actions the executor runs. The
// command handlers assemble requests from these; the tempban expiry
// task consumes the biz.GatewayActions subset.
type Gateway struct {
	session *discordgo.Session
}

// NewGateway creates the gateway action factory.
func NewGateway(s *discordgo.Session) *Gateway {
	return &Gateway{session: s}
}

// BanAction bans the user, deleting the given number of days of their
// recent messages.
func (g *Gateway) BanAction(guildID, userID, reason string, purgeDays int) model.Action {
	return model.NewAction("ban", func(ctx context.Context) (done, error) {
		err := g.session.GuildBanCreateWithReason(guildID, userID, reason, purgeDays, discordgo.WithContext(ctx))
		return done{}, err
	})
}

// UnbanAction lifts a ban.
func (g *Gateway) UnbanAction(guildID, userID string) model.Action {
	return model.NewAction("unban", func(ctx context.Context) (done, error) {
		err := g.session.GuildBanDelete(guildID, userID, discordgo.WithContext(ctx))
		return done{}, err
	})
}

// KickAction removes the member from the guild.
func (g *Gateway) KickAction(guildID, userID, reason string) model.Action {
	return model.NewAction("kick", func(ctx context.Context) (done, error) {
		err := g.session.GuildMemberDeleteWithReason(guildID, userID, reason, discordgo.WithContext(ctx))
		return done{}, err
	})
}

// TimeoutAction places the member in timeout until the given instant.
func (g *Gateway) TimeoutAction(guildID, userID string, until time.Time) model.Action {
	return model.NewAction("timeout", func(ctx context.Context) (done, error) {
		err := g.session.GuildMemberTimeout(guildID, userID, &until, discordgo.WithContext(ctx))
		return done{}, err
	})
}

// UntimeoutAction clears an active timeout.
func (g *Gateway) UntimeoutAction(guildID, userID string) model.Action {
	return model.NewAction("untimeout", func(ctx context.Context) (done, error) {
		err := g.session.GuildMemberTimeout(guildID, userID, nil, discordgo.WithContext(ctx))
		return done{}, err
	})
}

// AddRoleAction grants a role, used to jail members.
func (g *Gateway) AddRoleAction(guildID, userID, roleID string) model.Action {
	return model.NewAction("add role", func(ctx context.Context) (done, error) {
		err := g.session.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx))
		return done{}, err
	})
}

// RemoveRoleAction revokes a role, used to unjail members.
func (g *Gateway) RemoveRoleAction(guildID, userID, roleID string) model.Action {
	return model.NewAction("remove role", func(ctx context.Context) (done, error) {
		err := g.session.GuildMemberRoleRemove(guildID, userID, roleID, discordgo.WithContext(ctx))
		return done{}, err
	})
}

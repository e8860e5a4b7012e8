package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/go-kratos/kratos/v2/log"
)

// DirectMessenger delivers moderation notification DMs. Implements
// biz.DMSender. Every failure path is swallowed: a DM that cannot be
// delivered must never fail the moderation action.
type DirectMessenger struct {
	session *discordgo.Session
	logger  *log.Helper
}

// NewDirectMessenger creates the DM sender.
func NewDirectMessenger(s *discordgo.Session, logger log.Logger) *DirectMessenger {
	return &DirectMessenger{
		session: s,
		logger:  log.NewHelper(logger),
	}
}

// SendDM notifies the target about a moderation action taken against
// them. Returns whether the message went out. Users with DMs disabled
// or no mutual guild fail the channel create or the send; both are
// logged at debug and reported as not delivered.
func (d *DirectMessenger) SendDM(ctx context.Context, targetID, guildID, verb, reason string) bool {
	guildName := d.guildName(guildID)
	content := fmt.Sprintf("You have been %s in %s for the following reason:\n> %s", verb, guildName, reason)

	channel, err := d.session.UserChannelCreate(targetID, discordgo.WithContext(ctx))
	if err != nil {
		d.logger.Debugw("could not open DM channel",
			"target_id", targetID,
			"guild_id", guildID,
			"error", err)
		return false
	}

	if _, err := d.session.ChannelMessageSend(channel.ID, content, discordgo.WithContext(ctx)); err != nil {
		d.logger.Debugw("could not deliver DM",
			"target_id", targetID,
			"guild_id", guildID,
			"error", err)
		return false
	}

	return true
}

// guildName resolves the guild's display name from state, falling back
// to a generic label so the DM text never shows a raw id.
func (d *DirectMessenger) guildName(guildID string) string {
	if g, err := d.session.State.Guild(guildID); err == nil && g.Name != "" {
		return g.Name
	}
	return "the server"
}

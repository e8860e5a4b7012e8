package discord

import (
	"context"

	"tux/internal/biz"
	"tux/internal/conf"
	"tux/internal/model"

	"github.com/bwmarrin/discordgo"
	"github.com/go-kratos/kratos/v2/log"
)

const colorError = 0xED4245

// EmbedManager renders and delivers embeds. Implements
// biz.EmbedSender. Delivery failures are soft: the moderation action
// already happened by the time an embed goes out, so a missing log
// channel or a failed send is logged and reported as an empty message
// id, never as an error.
type EmbedManager struct {
	session *discordgo.Session
	guilds  biz.GuildConfigRepo
	appID   string
	logger  *log.Helper
}

// NewEmbedManager creates the embed manager.
func NewEmbedManager(s *discordgo.Session, c *conf.Discord, guilds biz.GuildConfigRepo, logger log.Logger) *EmbedManager {
	appID := ""
	if c != nil {
		appID = c.AppID
	}
	return &EmbedManager{
		session: s,
		guilds:  guilds,
		appID:   appID,
		logger:  log.NewHelper(logger),
	}
}

// SendEmbed delivers an embed to the invoking context and mirrors it
// to the guild's configured log channel for the log type. The returned
// id is the invoker-facing message when the invocation can be
// answered, otherwise the log channel message. Empty means nothing was
// delivered.
func (m *EmbedManager) SendEmbed(ctx context.Context, inv model.Invocation, embed model.Embed, logType model.LogType) string {
	rendered := renderEmbed(embed)

	primaryID := m.respond(ctx, inv, rendered)
	logID := m.mirrorToLog(ctx, inv, rendered, logType)

	if primaryID != "" {
		return primaryID
	}
	return logID
}

// SendErrorResponse tells the invoking moderator why their action
// failed. The notice is ephemeral when the invocation supports it.
func (m *EmbedManager) SendErrorResponse(ctx context.Context, inv model.Invocation, message string) {
	rendered := &discordgo.MessageEmbed{
		Description: message,
		Color:       colorError,
	}

	if inv.Token != "" {
		_, err := m.session.FollowupMessageCreate(m.interaction(inv), true, &discordgo.WebhookParams{
			Embeds: []*discordgo.MessageEmbed{rendered},
			Flags:  discordgo.MessageFlagsEphemeral,
		}, discordgo.WithContext(ctx))
		if err == nil {
			return
		}
		m.logger.Warnw("error followup failed",
			"guild_id", inv.GuildID,
			"moderator_id", inv.ModeratorID,
			"error", err)
	}

	if inv.ChannelID == "" {
		return
	}
	if _, err := m.session.ChannelMessageSendEmbed(inv.ChannelID, rendered, discordgo.WithContext(ctx)); err != nil {
		m.logger.Warnw("error notice failed",
			"guild_id", inv.GuildID,
			"channel_id", inv.ChannelID,
			"error", err)
	}
}

// respond answers the invocation: a followup when an interaction token
// is present, a plain channel message otherwise. Scheduled work with
// neither is fine; only the log mirror applies.
func (m *EmbedManager) respond(ctx context.Context, inv model.Invocation, rendered *discordgo.MessageEmbed) string {
	if inv.Token != "" {
		msg, err := m.session.FollowupMessageCreate(m.interaction(inv), true, &discordgo.WebhookParams{
			Embeds: []*discordgo.MessageEmbed{rendered},
		}, discordgo.WithContext(ctx))
		if err != nil {
			m.logger.Warnw("followup embed failed",
				"guild_id", inv.GuildID,
				"moderator_id", inv.ModeratorID,
				"error", err)
			return ""
		}
		return msg.ID
	}

	if inv.ChannelID == "" {
		return ""
	}
	msg, err := m.session.ChannelMessageSendEmbed(inv.ChannelID, rendered, discordgo.WithContext(ctx))
	if err != nil {
		m.logger.Warnw("channel embed failed",
			"guild_id", inv.GuildID,
			"channel_id", inv.ChannelID,
			"error", err)
		return ""
	}
	return msg.ID
}

// mirrorToLog copies the embed into the guild's configured log channel
// when one is set, valid, and not the channel already answered.
func (m *EmbedManager) mirrorToLog(ctx context.Context, inv model.Invocation, rendered *discordgo.MessageEmbed, logType model.LogType) string {
	if inv.GuildID == "" {
		return ""
	}

	cfg, err := m.guilds.GetGuildConfig(ctx, inv.GuildID)
	if err != nil {
		m.logger.Warnw("guild config lookup failed",
			"guild_id", inv.GuildID,
			"error", err)
		return ""
	}
	if cfg == nil {
		return ""
	}

	channelID := cfg.LogChannel(logType)
	if channelID == "" || channelID == inv.ChannelID {
		return ""
	}
	if !m.isTextChannel(channelID) {
		m.logger.Warnw("configured log channel is not a text channel",
			"guild_id", inv.GuildID,
			"channel_id", channelID,
			"log_type", logType)
		return ""
	}

	msg, err := m.session.ChannelMessageSendEmbed(channelID, rendered, discordgo.WithContext(ctx))
	if err != nil {
		m.logger.Warnw("log channel embed failed",
			"guild_id", inv.GuildID,
			"channel_id", channelID,
			"error", err)
		return ""
	}
	return msg.ID
}

// isTextChannel checks the channel type, preferring state over a REST
// round trip.
func (m *EmbedManager) isTextChannel(channelID string) bool {
	ch, err := m.session.State.Channel(channelID)
	if err != nil {
		ch, err = m.session.Channel(channelID)
		if err != nil {
			return false
		}
	}
	return ch.Type == discordgo.ChannelTypeGuildText || ch.Type == discordgo.ChannelTypeGuildNews
}

func (m *EmbedManager) interaction(inv model.Invocation) *discordgo.Interaction {
	return &discordgo.Interaction{
		AppID: m.appID,
		ID:    inv.InteractionID,
		Token: inv.Token,
	}
}

// renderEmbed maps the client-agnostic embed onto the wire shape.
func renderEmbed(e model.Embed) *discordgo.MessageEmbed {
	out := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: e.Description,
		Color:       e.Color,
	}
	if !e.Timestamp.IsZero() {
		out.Timestamp = e.Timestamp.Format("2006-01-02T15:04:05Z07:00")
	}
	if e.Thumbnail != "" {
		out.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: e.Thumbnail}
	}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Inline,
		})
	}
	return out
}

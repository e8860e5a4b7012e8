// Package bot hosts the Discord gateway transport: slash command
// registration and interaction dispatch. Command handlers translate
// interactions into executor requests; all moderation semantics live
// in the biz layer.
package bot

import (
	"context"
	"fmt"

	"tux/internal/biz"
	"tux/internal/conf"
	"tux/internal/discord"

	"github.com/bwmarrin/discordgo"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// ProviderSet is bot providers.
var ProviderSet = wire.NewSet(
	NewCooldowns,
	NewBot,
)

// Bot implements kratos transport.Server over the Discord gateway.
type Bot struct {
	session   *discordgo.Session
	conf      *conf.Discord
	executor  *biz.CaseExecutor
	gateway   *discord.Gateway
	guilds    *biz.GuildConfigUseCase
	snippets  *biz.SnippetUseCase
	cases     biz.CaseRepo
	embeds    biz.EmbedSender
	cooldowns *Cooldowns
	logger    *log.Helper

	registered []*discordgo.ApplicationCommand
}

// NewBot creates the gateway transport.
func NewBot(
	session *discordgo.Session,
	c *conf.Discord,
	executor *biz.CaseExecutor,
	gateway *discord.Gateway,
	guilds *biz.GuildConfigUseCase,
	snippets *biz.SnippetUseCase,
	cases biz.CaseRepo,
	embeds biz.EmbedSender,
	cooldowns *Cooldowns,
	logger log.Logger,
) *Bot {
	b := &Bot{
		session:   session,
		conf:      c,
		executor:  executor,
		gateway:   gateway,
		guilds:    guilds,
		snippets:  snippets,
		cases:     cases,
		embeds:    embeds,
		cooldowns: cooldowns,
		logger:    log.NewHelper(logger),
	}
	session.AddHandler(b.onReady)
	session.AddHandler(b.onInteraction)
	return b
}

// Start opens the gateway connection and registers the slash commands.
// A configured guild id scopes registration to that guild; otherwise
// commands register globally.
func (b *Bot) Start(ctx context.Context) error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord gateway: %w", err)
	}

	registered, err := b.session.ApplicationCommandBulkOverwrite(
		b.conf.AppID, b.conf.GuildID, commandDefinitions(), discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to register slash commands: %w", err)
	}
	b.registered = registered

	b.logger.Infow("discord gateway started",
		"commands", len(registered),
		"guild_scope", b.conf.GuildID)
	return nil
}

// Stop disconnects from the gateway. Registered commands are left in
// place; re-registration on the next start overwrites them.
func (b *Bot) Stop(ctx context.Context) error {
	b.logger.Info("stopping discord gateway")
	return b.session.Close()
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.logger.Infow("discord session ready",
		"username", r.User.Username,
		"guilds", len(r.Guilds))
}

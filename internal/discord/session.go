// Package discord adapts the discordgo client to the interfaces the
// biz layer consumes: failure classification, gateway actions, DM and
// embed delivery.
package discord

import (
	"fmt"

	"tux/internal/conf"

	"github.com/bwmarrin/discordgo"
	"github.com/go-kratos/kratos/v2/log"
)

// NewSession creates the discordgo session. The gateway connection is
// opened later by the bot transport; this only constructs and
// configures the client so it can be injected everywhere.
func NewSession(c *conf.Discord, logger log.Logger) (*discordgo.Session, func(), error) {
	helper := log.NewHelper(logger)

	if c == nil || c.Token == "" {
		return nil, nil, fmt.Errorf("discord token is required")
	}

	s, err := discordgo.New("Bot " + c.Token)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	s.Identify.Intents = discordgo.IntentGuilds |
		discordgo.IntentGuildMembers |
		discordgo.IntentGuildModeration |
		discordgo.IntentGuildMessages

	// The built-in retry would fight the retry handler's accounting;
	// rate limits surface as errors and are classified instead.
	s.MaxRestRetries = 0
	s.ShouldRetryOnRateLimit = false

	s.StateEnabled = true

	cleanup := func() {
		helper.Info("closing discord session")
		if err := s.Close(); err != nil {
			helper.Errorf("failed to close discord session: %v", err)
		}
	}

	return s, cleanup, nil
}

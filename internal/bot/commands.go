package bot

import (
	"context"
	"time"

	"tux/internal/model"

	"github.com/bwmarrin/discordgo"
)

// Permission ranks required per command. Rank 0 commands are open to
// everyone; guilds grant ranks to roles via the permission_ranks table.
const (
	rankEveryone  = 0
	rankModerator = 1
	rankSenior    = 2
	rankAdmin     = 3
)

var commandRanks = map[string]int{
	"ban":       rankSenior,
	"tempban":   rankSenior,
	"unban":     rankSenior,
	"kick":      rankModerator,
	"timeout":   rankModerator,
	"untimeout": rankModerator,
	"warn":      rankModerator,
	"jail":      rankModerator,
	"unjail":    rankModerator,
	"cases":     rankModerator,
	"snippet":   rankModerator,
}

// interactionTimeout bounds one command execution end to end. It has
// to cover queue waits plus retries, so it is generous.
const interactionTimeout = 3 * time.Minute

func commandDefinitions() []*discordgo.ApplicationCommand {
	userOpt := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionUser,
		Name:        "user",
		Description: "Target user",
		Required:    true,
	}
	reasonOpt := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "reason",
		Description: "Reason for the action",
		Required:    true,
	}
	durationOpt := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "duration",
		Description: "Duration, e.g. 30m, 12h, 7d",
		Required:    true,
	}
	silentOpt := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionBoolean,
		Name:        "silent",
		Description: "Skip notifying the user by DM",
	}

	return []*discordgo.ApplicationCommand{
		{
			Name:        "ban",
			Description: "Ban a user from the server",
			Options: []*discordgo.ApplicationCommandOption{
				userOpt, reasonOpt,
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "purge_days",
					Description: "Days of recent messages to delete (0-7)",
					MinValue:    float64Ptr(0),
					MaxValue:    7,
				},
				silentOpt,
			},
		},
		{
			Name:        "tempban",
			Description: "Ban a user temporarily",
			Options:     []*discordgo.ApplicationCommandOption{userOpt, durationOpt, reasonOpt, silentOpt},
		},
		{
			Name:        "unban",
			Description: "Lift a ban",
			Options:     []*discordgo.ApplicationCommandOption{userOpt, reasonOpt},
		},
		{
			Name:        "kick",
			Description: "Kick a user from the server",
			Options:     []*discordgo.ApplicationCommandOption{userOpt, reasonOpt, silentOpt},
		},
		{
			Name:        "timeout",
			Description: "Time a user out",
			Options:     []*discordgo.ApplicationCommandOption{userOpt, durationOpt, reasonOpt, silentOpt},
		},
		{
			Name:        "untimeout",
			Description: "Clear a user's timeout",
			Options:     []*discordgo.ApplicationCommandOption{userOpt, reasonOpt},
		},
		{
			Name:        "warn",
			Description: "Warn a user",
			Options:     []*discordgo.ApplicationCommandOption{userOpt, reasonOpt, silentOpt},
		},
		{
			Name:        "jail",
			Description: "Jail a user",
			Options:     []*discordgo.ApplicationCommandOption{userOpt, reasonOpt, silentOpt},
		},
		{
			Name:        "unjail",
			Description: "Release a user from jail",
			Options:     []*discordgo.ApplicationCommandOption{userOpt, reasonOpt},
		},
		{
			Name:        "cases",
			Description: "Show recent moderation cases",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "Only cases against this user",
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "limit",
					Description: "Number of cases to show (max 25)",
					MinValue:    float64Ptr(1),
					MaxValue:    25,
				},
			},
		},
		{
			Name:        "snippet",
			Description: "Manage canned moderation responses",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "add",
					Description: "Store a snippet",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "name",
							Description: "Snippet name",
							Required:    true,
						},
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "content",
							Description: "Snippet text",
							Required:    true,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "get",
					Description: "Recall a snippet",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "name",
							Description: "Snippet name",
							Required:    true,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "delete",
					Description: "Delete a snippet",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "name",
							Description: "Snippet name",
							Required:    true,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "list",
					Description: "List this server's snippets",
				},
			},
		},
	}
}

// onInteraction is the single dispatcher for slash commands. It defers
// the response up front so handlers are free to block on queue waits
// and retries, then gates on cooldown and permission rank.
func (b *Bot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	if i.GuildID == "" || i.Member == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), interactionTimeout)
	defer cancel()

	name := i.ApplicationCommandData().Name
	inv := invocationOf(i)

	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}, discordgo.WithContext(ctx)); err != nil {
		b.logger.Warnw("failed to defer interaction",
			"command", name,
			"guild_id", i.GuildID,
			"error", err)
		return
	}

	if !b.cooldowns.Allow(ctx, i.GuildID, inv.ModeratorID, name) {
		b.embeds.SendErrorResponse(ctx, inv, "Slow down, this command is on cooldown.")
		return
	}

	if err := b.guilds.CheckRank(ctx, i.GuildID, i.Member.Roles, commandRanks[name]); err != nil {
		b.embeds.SendErrorResponse(ctx, inv, "You don't have permission to use this command.")
		return
	}

	var err error
	switch name {
	case "ban":
		err = b.handleBan(ctx, i, inv)
	case "tempban":
		err = b.handleTempBan(ctx, i, inv)
	case "unban":
		err = b.handleUnban(ctx, i, inv)
	case "kick":
		err = b.handleKick(ctx, i, inv)
	case "timeout":
		err = b.handleTimeout(ctx, i, inv)
	case "untimeout":
		err = b.handleUntimeout(ctx, i, inv)
	case "warn":
		err = b.handleWarn(ctx, i, inv)
	case "jail":
		err = b.handleJail(ctx, i, inv)
	case "unjail":
		err = b.handleUnjail(ctx, i, inv)
	case "cases":
		err = b.handleCases(ctx, i, inv)
	case "snippet":
		err = b.handleSnippet(ctx, i, inv)
	default:
		b.logger.Warnw("unknown command", "command", name)
		return
	}

	if err != nil {
		b.logger.Errorw("command failed",
			"command", name,
			"guild_id", i.GuildID,
			"moderator_id", inv.ModeratorID,
			"error", err)
	}
}

func invocationOf(i *discordgo.InteractionCreate) model.Invocation {
	return model.Invocation{
		GuildID:       i.GuildID,
		ChannelID:     i.ChannelID,
		ModeratorID:   i.Member.User.ID,
		InteractionID: i.ID,
		Token:         i.Token,
	}
}

// options flattens the interaction's options into a name-keyed map.
// Subcommands contribute their nested options.
func options(i *discordgo.InteractionCreate) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	opts := i.ApplicationCommandData().Options
	if len(opts) == 1 && opts[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		opts = opts[0].Options
	}
	out := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(opts))
	for _, opt := range opts {
		out[opt.Name] = opt
	}
	return out
}

func stringOpt(opts map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	if opt, ok := opts[name]; ok {
		return opt.StringValue()
	}
	return ""
}

func boolOpt(opts map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) bool {
	if opt, ok := opts[name]; ok {
		return opt.BoolValue()
	}
	return false
}

func intOpt(opts map[string]*discordgo.ApplicationCommandInteractionDataOption, name string, fallback int64) int64 {
	if opt, ok := opts[name]; ok {
		return opt.IntValue()
	}
	return fallback
}

// userOptID returns the target user id without resolving the full user
// object; moderation actions only need the snowflake.
func userOptID(opts map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	if opt, ok := opts[name]; ok {
		if v, ok := opt.Value.(string); ok {
			return v
		}
	}
	return ""
}

func float64Ptr(v float64) *float64 {
	return &v
}

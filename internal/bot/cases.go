package bot

import (
	"context"
	"fmt"
	"strings"

	"tux/internal/data"
	"tux/internal/model"

	"github.com/bwmarrin/discordgo"
)

const colorInfo = 0x5865F2

func (b *Bot) handleCases(ctx context.Context, i *discordgo.InteractionCreate, inv model.Invocation) error {
	opts := options(i)
	targetID := userOptID(opts, "user")
	limit := int(intOpt(opts, "limit", 0))

	cases, err := b.cases.ListCases(ctx, inv.GuildID, targetID, limit)
	if err != nil {
		b.embeds.SendErrorResponse(ctx, inv, "Could not load moderation cases.")
		return err
	}

	title := "Recent cases"
	if targetID != "" {
		title = fmt.Sprintf("Recent cases against <@%s>", targetID)
	}

	embed := &discordgo.MessageEmbed{
		Title:       title,
		Description: formatCaseList(cases),
		Color:       colorInfo,
	}
	return b.followup(ctx, inv, embed)
}

func formatCaseList(cases []*data.Case) string {
	if len(cases) == 0 {
		return "No cases found."
	}
	var sb strings.Builder
	for _, c := range cases {
		status := ""
		if c.Status == model.CaseInactive {
			status = " (inactive)"
		}
		fmt.Fprintf(&sb, "`#%d` **%s** <@%s> by <@%s>%s\n",
			c.CaseNumber, strings.ToUpper(string(c.CaseType)), c.TargetID, c.ModeratorID, status)
	}
	return sb.String()
}

// followup answers the deferred interaction with an informational
// embed, bypassing the log channel mirroring used for case responses.
func (b *Bot) followup(ctx context.Context, inv model.Invocation, embed *discordgo.MessageEmbed) error {
	_, err := b.session.FollowupMessageCreate(&discordgo.Interaction{
		AppID: b.conf.AppID,
		ID:    inv.InteractionID,
		Token: inv.Token,
	}, true, &discordgo.WebhookParams{
		Embeds: []*discordgo.MessageEmbed{embed},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to send followup: %w", err)
	}
	return nil
}

package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tux/internal/data"
	"tux/internal/model"

	"github.com/bwmarrin/discordgo"
)

func (b *Bot) handleSnippet(ctx context.Context, i *discordgo.InteractionCreate, inv model.Invocation) error {
	cmdOpts := i.ApplicationCommandData().Options
	if len(cmdOpts) == 0 {
		return fmt.Errorf("snippet command without subcommand")
	}
	sub := cmdOpts[0].Name
	opts := options(i)

	switch sub {
	case "add":
		return b.snippetAdd(ctx, inv, stringOpt(opts, "name"), stringOpt(opts, "content"))
	case "get":
		return b.snippetGet(ctx, inv, stringOpt(opts, "name"))
	case "delete":
		return b.snippetDelete(ctx, inv, stringOpt(opts, "name"))
	case "list":
		return b.snippetList(ctx, inv)
	default:
		return fmt.Errorf("unknown snippet subcommand %q", sub)
	}
}

func (b *Bot) snippetAdd(ctx context.Context, inv model.Invocation, name, content string) error {
	err := b.snippets.Create(ctx, inv.GuildID, inv.ModeratorID, name, content)
	if err != nil {
		if errors.Is(err, data.ErrSnippetExists) {
			b.embeds.SendErrorResponse(ctx, inv, fmt.Sprintf("A snippet named `%s` already exists.", strings.ToLower(name)))
			return nil
		}
		b.embeds.SendErrorResponse(ctx, inv, "Could not create the snippet.")
		return err
	}
	return b.followup(ctx, inv, &discordgo.MessageEmbed{
		Description: fmt.Sprintf("Snippet `%s` saved.", strings.ToLower(name)),
		Color:       colorInfo,
	})
}

func (b *Bot) snippetGet(ctx context.Context, inv model.Invocation, name string) error {
	s, err := b.snippets.Get(ctx, inv.GuildID, name)
	if err != nil {
		if errors.Is(err, data.ErrSnippetNotFound) {
			b.embeds.SendErrorResponse(ctx, inv, fmt.Sprintf("No snippet named `%s`.", strings.ToLower(name)))
			return nil
		}
		b.embeds.SendErrorResponse(ctx, inv, "Could not load the snippet.")
		return err
	}

	_, err = b.session.FollowupMessageCreate(&discordgo.Interaction{
		AppID: b.conf.AppID,
		ID:    inv.InteractionID,
		Token: inv.Token,
	}, true, &discordgo.WebhookParams{
		Content: s.Content,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to send snippet: %w", err)
	}
	return nil
}

func (b *Bot) snippetDelete(ctx context.Context, inv model.Invocation, name string) error {
	err := b.snippets.Delete(ctx, inv.GuildID, name)
	if err != nil {
		if errors.Is(err, data.ErrSnippetNotFound) {
			b.embeds.SendErrorResponse(ctx, inv, fmt.Sprintf("No snippet named `%s`.", strings.ToLower(name)))
			return nil
		}
		b.embeds.SendErrorResponse(ctx, inv, "Could not delete the snippet.")
		return err
	}
	return b.followup(ctx, inv, &discordgo.MessageEmbed{
		Description: fmt.Sprintf("Snippet `%s` deleted.", strings.ToLower(name)),
		Color:       colorInfo,
	})
}

func (b *Bot) snippetList(ctx context.Context, inv model.Invocation) error {
	snippets, err := b.snippets.List(ctx, inv.GuildID)
	if err != nil {
		b.embeds.SendErrorResponse(ctx, inv, "Could not list snippets.")
		return err
	}

	description := "No snippets yet."
	if len(snippets) > 0 {
		var sb strings.Builder
		for _, s := range snippets {
			fmt.Fprintf(&sb, "`%s` (used %d times)\n", s.Name, s.Uses)
		}
		description = sb.String()
	}

	return b.followup(ctx, inv, &discordgo.MessageEmbed{
		Title:       "Snippets",
		Description: description,
		Color:       colorInfo,
	})
}

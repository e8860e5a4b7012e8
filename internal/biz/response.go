package biz

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tux/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// Embed colors per case class.
const (
	colorRemoval     = 0xED4245 // red
	colorRestrict    = 0xFEE75C // yellow
	colorRestorative = 0x57F287 // green
)

// CaseResponseHandler formats and sends the post-action notification
// for a completed case.
type CaseResponseHandler struct {
	embeds EmbedSender
	logger *log.Helper
}

// NewCaseResponseHandler creates the response handler.
func NewCaseResponseHandler(embeds EmbedSender, logger log.Logger) *CaseResponseHandler {
	return &CaseResponseHandler{
		embeds: embeds,
		logger: log.NewHelper(logger),
	}
}

// HandleCaseResponse builds the case embed and delivers it to the
// invoking context and the guild's mod log. Returns the sent message
// id, or empty when the send soft-failed: a failed notification never
// masks that the moderation action itself already happened.
func (h *CaseResponseHandler) HandleCaseResponse(
	ctx context.Context,
	inv model.Invocation,
	caseType model.CaseType,
	caseNumber int64,
	reason string,
	targetID string,
	dmSent bool,
	duration string,
) string {
	embed := model.Embed{
		Title:       formatCaseTitle(caseType, caseNumber, duration),
		Description: dmIndicator(dmSent),
		Color:       caseColor(caseType),
		Timestamp:   time.Now().UTC(),
		Fields: []model.EmbedField{
			{Name: "Moderator", Value: fmt.Sprintf("<@%s>", inv.ModeratorID), Inline: true},
			{Name: "Target", Value: fmt.Sprintf("<@%s>", targetID), Inline: true},
			// The reason is rendered verbatim, whatever its length or
			// content.
			{Name: "Reason", Value: fmt.Sprintf("-# > %s", reason)},
		},
	}

	messageID := h.embeds.SendEmbed(ctx, inv, embed, model.LogMod)
	if messageID == "" {
		h.logger.Warnw("case response could not be delivered",
			"guild_id", inv.GuildID,
			"case_number", caseNumber,
			"case_type", caseType)
	}
	return messageID
}

// formatCaseTitle renders "Case #42 (1h BAN)" with a duration and
// "Case #42 (BAN)" without. A missing case number renders as #0.
func formatCaseTitle(caseType model.CaseType, caseNumber int64, duration string) string {
	if duration != "" {
		return fmt.Sprintf("Case #%d (%s %s)", caseNumber, duration, strings.ToUpper(string(caseType)))
	}
	return fmt.Sprintf("Case #%d (%s)", caseNumber, strings.ToUpper(string(caseType)))
}

func dmIndicator(dmSent bool) string {
	if dmSent {
		return "-# The user was notified by DM."
	}
	return "-# The user was not notified by DM."
}

func caseColor(caseType model.CaseType) int {
	switch caseType {
	case model.CaseBan, model.CaseTempBan, model.CaseKick:
		return colorRemoval
	case model.CaseUnban, model.CaseUntimeout, model.CaseUnjail:
		return colorRestorative
	default:
		return colorRestrict
	}
}

package biz

import (
	"context"
	"os"
	"testing"

	"tux/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatCaseTitle(t *testing.T) {
	tests := []struct {
		name       string
		caseType   model.CaseType
		caseNumber int64
		duration   string
		want       string
	}{
		{"ban", model.CaseBan, 42, "", "Case #42 (BAN)"},
		{"tempban_with_duration", model.CaseTempBan, 7, "1h", "Case #7 (1h TEMPBAN)"},
		{"timeout_with_duration", model.CaseTimeout, 3, "30m", "Case #3 (30m TIMEOUT)"},
		{"warn", model.CaseWarn, 100, "", "Case #100 (WARN)"},
		{"persist_failure_renders_zero", model.CaseKick, 0, "", "Case #0 (KICK)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatCaseTitle(tt.caseType, tt.caseNumber, tt.duration)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCaseColor(t *testing.T) {
	// Removal actions red, restorative actions green, the rest yellow.
	assert.Equal(t, colorRemoval, caseColor(model.CaseBan))
	assert.Equal(t, colorRemoval, caseColor(model.CaseTempBan))
	assert.Equal(t, colorRemoval, caseColor(model.CaseKick))
	assert.Equal(t, colorRestorative, caseColor(model.CaseUnban))
	assert.Equal(t, colorRestorative, caseColor(model.CaseUntimeout))
	assert.Equal(t, colorRestorative, caseColor(model.CaseUnjail))
	assert.Equal(t, colorRestrict, caseColor(model.CaseTimeout))
	assert.Equal(t, colorRestrict, caseColor(model.CaseWarn))
	assert.Equal(t, colorRestrict, caseColor(model.CaseJail))
}

func TestHandleCaseResponse_EmbedContents(t *testing.T) {
	logger := log.NewStdLogger(os.Stdout)
	r := &recorder{}
	embeds := &fakeEmbeds{r: r, id: "msg-9"}
	h := NewCaseResponseHandler(embeds, logger)

	inv := model.Invocation{GuildID: "guild-1", ChannelID: "chan-1", ModeratorID: "mod-1"}
	id := h.HandleCaseResponse(context.Background(), inv, model.CaseBan, 42, "repeated spam", "target-1", true, "")

	assert.Equal(t, "msg-9", id)
	require.Len(t, embeds.embeds, 1)
	e := embeds.embeds[0]

	assert.Equal(t, "Case #42 (BAN)", e.Title)
	assert.Contains(t, e.Description, "was notified by DM")
	assert.Equal(t, colorRemoval, e.Color)
	require.Len(t, e.Fields, 3)
	assert.Equal(t, "<@mod-1>", e.Fields[0].Value)
	assert.Equal(t, "<@target-1>", e.Fields[1].Value)
	assert.Contains(t, e.Fields[2].Value, "repeated spam")
}

func TestHandleCaseResponse_DMNotSent(t *testing.T) {
	logger := log.NewStdLogger(os.Stdout)
	r := &recorder{}
	embeds := &fakeEmbeds{r: r, id: "msg-1"}
	h := NewCaseResponseHandler(embeds, logger)

	inv := model.Invocation{GuildID: "guild-1", ModeratorID: "mod-1"}
	h.HandleCaseResponse(context.Background(), inv, model.CaseTimeout, 5, "r", "target-1", false, "10m")

	require.Len(t, embeds.embeds, 1)
	assert.Contains(t, embeds.embeds[0].Description, "was not notified by DM")
	assert.Equal(t, "Case #5 (10m TIMEOUT)", embeds.embeds[0].Title)
}

func TestHandleCaseResponse_DeliveryFailureSoft(t *testing.T) {
	logger := log.NewStdLogger(os.Stdout)
	r := &recorder{}
	// Empty id simulates a send that silently failed.
	embeds := &fakeEmbeds{r: r, id: ""}
	h := NewCaseResponseHandler(embeds, logger)

	inv := model.Invocation{GuildID: "guild-1", ModeratorID: "mod-1"}
	id := h.HandleCaseResponse(context.Background(), inv, model.CaseWarn, 1, "r", "target-1", false, "")
	assert.Empty(t, id)
}

package model

import "time"

// LogType selects which configured guild log channel an embed is
// delivered to.
type LogType string

// Log type constants matching GuildConfig channel fields.
const (
	LogMod   LogType = "mod"
	LogAudit LogType = "audit"
)

// EmbedField is one field of an embed, one-to-one with the wire shape.
type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// Embed is the client-agnostic embed model built by the biz layer and
// rendered by the discord adapter.
type Embed struct {
	Title       string
	Description string
	Color       int
	Thumbnail   string
	Timestamp   time.Time
	Fields      []EmbedField
}

// Invocation identifies where a command was invoked and by whom. The
// discord adapter uses it to route responses; the biz layer treats it
// as opaque addressing.
type Invocation struct {
	GuildID       string
	ChannelID     string
	ModeratorID   string
	InteractionID string
	// Token is the interaction token used for follow-up responses.
	Token string
}

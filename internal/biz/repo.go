package biz

import (
	"context"
	"time"

	"tux/internal/data"
	"tux/internal/model"
)

// CaseRepo defines the case repository interface. Following the
// project's DDD layering, interfaces are defined in biz and
// implemented in data. InsertCase assigns the guild-scoped case number
// inside the insert transaction and must raise on failure, never
// return a sentinel.
type CaseRepo interface {
	InsertCase(ctx context.Context, nc model.NewCase) (*data.Case, error)
	GetCase(ctx context.Context, guildID string, caseNumber int64) (*data.Case, error)
	ListCases(ctx context.Context, guildID, targetID string, limit int) ([]*data.Case, error)
	SetCaseStatus(ctx context.Context, id int64, status model.CaseStatus) error
	ListExpiredTempBans(ctx context.Context, now time.Time) ([]*data.Case, error)
}

// GuildConfigRepo defines the guild configuration repository interface.
type GuildConfigRepo interface {
	GetGuildConfig(ctx context.Context, guildID string) (*data.GuildConfig, error)
	UpsertGuildConfig(ctx context.Context, cfg *data.GuildConfig) error
	SetLogChannel(ctx context.Context, guildID string, logType model.LogType, channelID string) error
}

// SnippetRepo defines the snippet repository interface.
type SnippetRepo interface {
	CreateSnippet(ctx context.Context, s *data.Snippet) error
	GetSnippet(ctx context.Context, guildID, name string) (*data.Snippet, error)
	DeleteSnippet(ctx context.Context, guildID, name string) error
	ListSnippets(ctx context.Context, guildID string) ([]*data.Snippet, error)
	IncrementUses(ctx context.Context, guildID, name string) error
}

// Ranker resolves a member's permission rank from their roles. The
// rank schema itself lives in the data layer; this core only consumes
// the lookup.
type Ranker interface {
	RankForRoles(ctx context.Context, guildID string, roleIDs []string) (int, error)
}

// AuditLogger defines the interface for moderation audit logging.
// Implementations must be non-blocking; audit delivery is best-effort.
type AuditLogger interface {
	LogCaseCreated(ctx context.Context, guildID string, caseNumber int64, caseType model.CaseType, moderatorID, targetID string)
	LogCasePersistFailed(ctx context.Context, guildID string, caseType model.CaseType, targetID string, reason error)
	LogTempBanExpired(ctx context.Context, guildID string, caseNumber int64, targetID string)
	LogCircuitOpened(ctx context.Context, ev model.CircuitOpenedEvent)
	LogCircuitClosed(ctx context.Context, ev model.CircuitClosedEvent)
}

// DMSender delivers moderation DMs. Delivery is best-effort: the
// return value reports whether the DM went out, and implementations
// swallow delivery failures.
type DMSender interface {
	SendDM(ctx context.Context, targetID string, guildID string, verb, reason string) bool
}

// EmbedSender delivers embeds to the invoking context and to the
// guild's configured log channels, and error notices to the invoking
// moderator. SendEmbed returns an empty message id, not an error, for
// soft conditions: missing or misconfigured log channel, or a failed
// send.
type EmbedSender interface {
	SendEmbed(ctx context.Context, inv model.Invocation, embed model.Embed, logType model.LogType) string
	SendErrorResponse(ctx context.Context, inv model.Invocation, message string)
}

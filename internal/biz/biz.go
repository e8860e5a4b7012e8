// Package biz contains business logic layer implementations.
// This layer holds the core business rules and domain models.
package biz

import (
	"tux/internal/data"

	"github.com/google/wire"
)

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewLockManager,
	NewRetryHandler,
	NewCaseResponseHandler,
	NewCaseExecutor,
	NewGuildConfigUseCase,
	NewSnippetUseCase,
	NewTempBanExpiryTask,
	// Import data layer providers
	data.NewCaseRepo,
	data.NewGuildConfigRepo,
	data.NewSnippetRepo,
	data.NewAuditLogger,
	// Bind data layer implementations to biz layer interfaces
	wire.Bind(new(CaseRepo), new(*data.CaseRepo)),
	wire.Bind(new(GuildConfigRepo), new(*data.GuildConfigRepo)),
	wire.Bind(new(SnippetRepo), new(*data.SnippetRepo)),
	wire.Bind(new(Ranker), new(*data.GuildConfigRepo)),
	wire.Bind(new(AuditLogger), new(*data.AuditLoggerImpl)),
)

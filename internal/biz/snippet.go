package biz

import (
	"context"
	"fmt"
	"strings"

	"tux/internal/data"

	"github.com/go-kratos/kratos/v2/log"
)

// Snippet name constraints.
const maxSnippetNameLen = 32

// SnippetUseCase implements named per-guild text snippets: short
// canned responses moderators can store and recall by name.
type SnippetUseCase struct {
	repo   SnippetRepo
	logger *log.Helper
}

// NewSnippetUseCase creates a new snippet use case.
func NewSnippetUseCase(repo SnippetRepo, logger log.Logger) *SnippetUseCase {
	return &SnippetUseCase{
		repo:   repo,
		logger: log.NewHelper(logger),
	}
}

// Create stores a new snippet. Names are normalized to lower case and
// must be short, single-word identifiers.
func (uc *SnippetUseCase) Create(ctx context.Context, guildID, authorID, name, content string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || len(name) > maxSnippetNameLen || strings.ContainsAny(name, " \t\n") {
		return fmt.Errorf("snippet name must be a single word of at most %d characters", maxSnippetNameLen)
	}
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("snippet content must not be empty")
	}

	err := uc.repo.CreateSnippet(ctx, &data.Snippet{
		GuildID:  guildID,
		AuthorID: authorID,
		Name:     name,
		Content:  content,
	})
	if err != nil {
		return fmt.Errorf("failed to create snippet %q: %w", name, err)
	}

	uc.logger.Infow("snippet created",
		"guild_id", guildID,
		"name", name,
		"author_id", authorID)
	return nil
}

// Get fetches a snippet by name and counts the use. The use counter
// update is best-effort.
func (uc *SnippetUseCase) Get(ctx context.Context, guildID, name string) (*data.Snippet, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	s, err := uc.repo.GetSnippet(ctx, guildID, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get snippet %q: %w", name, err)
	}

	if err := uc.repo.IncrementUses(ctx, guildID, name); err != nil {
		uc.logger.Warnw("failed to count snippet use",
			"guild_id", guildID,
			"name", name,
			"error", err)
	}
	return s, nil
}

// Delete removes a snippet.
func (uc *SnippetUseCase) Delete(ctx context.Context, guildID, name string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if err := uc.repo.DeleteSnippet(ctx, guildID, name); err != nil {
		return fmt.Errorf("failed to delete snippet %q: %w", name, err)
	}
	return nil
}

// List returns all snippets of a guild ordered by name.
func (uc *SnippetUseCase) List(ctx context.Context, guildID string) ([]*data.Snippet, error) {
	snippets, err := uc.repo.ListSnippets(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to list snippets: %w", err)
	}
	return snippets, nil
}

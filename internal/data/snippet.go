package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	pkgerrors "tux/pkg/errors"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// Snippet is the GORM model for the snippets table.
type Snippet struct {
	ID        int64     `gorm:"primaryKey;column:id"`
	GuildID   string    `gorm:"column:guild_id;size:20;not null;uniqueIndex:uq_guild_snippet,priority:1"`
	Name      string    `gorm:"column:name;size:32;not null;uniqueIndex:uq_guild_snippet,priority:2"`
	AuthorID  string    `gorm:"column:author_id;size:20;not null"`
	Content   string    `gorm:"column:content;type:text;not null"`
	Uses      int64     `gorm:"column:uses;default:0;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (Snippet) TableName() string {
	return "snippets"
}

// ErrSnippetExists is returned when a snippet name is already taken in
// the guild.
var ErrSnippetExists = errors.New("snippet already exists")

// ErrSnippetNotFound is returned when no snippet matches the name.
var ErrSnippetNotFound = errors.New("snippet not found")

// SnippetRepo implements biz.SnippetRepo on MySQL with a read-through
// cache.
type SnippetRepo struct {
	db     *gorm.DB
	cache  CacheClient
	logger *log.Helper
}

// NewSnippetRepo creates a new snippet repository.
func NewSnippetRepo(db *gorm.DB, cache CacheClient, logger log.Logger) *SnippetRepo {
	return &SnippetRepo{
		db:     db,
		cache:  cache,
		logger: log.NewHelper(logger),
	}
}

// CreateSnippet inserts a snippet; duplicate names map to
// ErrSnippetExists.
func (r *SnippetRepo) CreateSnippet(ctx context.Context, s *Snippet) error {
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		if pkgerrors.IsDuplicateKeyError(err) {
			return ErrSnippetExists
		}
		return fmt.Errorf("failed to create snippet: %w", err)
	}
	return nil
}

// GetSnippet fetches a snippet by guild and name.
func (r *SnippetRepo) GetSnippet(ctx context.Context, guildID, name string) (*Snippet, error) {
	cacheKey := BuildCacheKey(CacheKeySnippet, guildID, name)

	var cached Snippet
	if err := r.cache.Get(ctx, cacheKey, &cached); err == nil {
		return &cached, nil
	} else if !errors.Is(err, ErrCacheNotFound) {
		r.logger.Warnw("snippet cache read failed", "guild_id", guildID, "name", name, "error", err)
	}

	var s Snippet
	err := r.db.WithContext(ctx).
		Where("guild_id = ? AND name = ?", guildID, name).
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSnippetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snippet: %w", err)
	}

	if err := r.cache.Set(ctx, cacheKey, &s, TTLSnippet); err != nil {
		r.logger.Warnw("snippet cache write failed", "guild_id", guildID, "name", name, "error", err)
	}
	return &s, nil
}

// DeleteSnippet removes a snippet and its cache entry.
func (r *SnippetRepo) DeleteSnippet(ctx context.Context, guildID, name string) error {
	result := r.db.WithContext(ctx).
		Where("guild_id = ? AND name = ?", guildID, name).
		Delete(&Snippet{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete snippet: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrSnippetNotFound
	}

	if err := r.cache.Delete(ctx, BuildCacheKey(CacheKeySnippet, guildID, name)); err != nil {
		r.logger.Warnw("snippet cache invalidation failed", "guild_id", guildID, "name", name, "error", err)
	}
	return nil
}

// ListSnippets returns a guild's snippets ordered by name.
func (r *SnippetRepo) ListSnippets(ctx context.Context, guildID string) ([]*Snippet, error) {
	var snippets []*Snippet
	err := r.db.WithContext(ctx).
		Where("guild_id = ?", guildID).
		Order("name ASC").
		Find(&snippets).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list snippets: %w", err)
	}
	return snippets, nil
}

// IncrementUses bumps the use counter. The cached copy is dropped so
// the next read sees the fresh count.
func (r *SnippetRepo) IncrementUses(ctx context.Context, guildID, name string) error {
	result := r.db.WithContext(ctx).
		Model(&Snippet{}).
		Where("guild_id = ? AND name = ?", guildID, name).
		Update("uses", gorm.Expr("uses + 1"))
	if result.Error != nil {
		return fmt.Errorf("failed to increment snippet uses: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrSnippetNotFound
	}

	if err := r.cache.Delete(ctx, BuildCacheKey(CacheKeySnippet, guildID, name)); err != nil {
		r.logger.Warnw("snippet cache invalidation failed", "guild_id", guildID, "name", name, "error", err)
	}
	return nil
}

package repositories

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/jmoiron/sqlx"
)

// RecentEmojiLimit is how many emojis are kept per user.
const RecentEmojiLimit = 24

var ErrInvalidEmoji = errors.New("invalid emoji")

// EmojiRepository abstracts the recent-emoji cache.
type EmojiRepository interface {
	Touch(ctx context.Context, userID, emoji string) error
	List(ctx context.Context, userID string, limit int) ([]string, error)
}

// EmojiRepo is a sqlx implementation of EmojiRepository.
type EmojiRepo struct {
	db *sqlx.DB
}

// NewEmojiRepo constructs an EmojiRepo.
func NewEmojiRepo(db *sqlx.DB) *EmojiRepo {
	return &EmojiRepo{db: db}
}

// ValidEmoji reports whether e looks like a single emoji sequence.
func ValidEmoji(e string) bool {
	e = strings.TrimSpace(e)
	if e == "" || utf8.RuneCountInString(e) > 8 || !utf8.ValidString(e) {
		return false
	}
	for _, r := range e {
		if r < 0x80 && r != '#' && r != '*' && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// Touch marks emoji as used now and trims the user's list to the newest
// RecentEmojiLimit entries.
func (r *EmojiRepo) Touch(ctx context.Context, userID, emoji string) error {
	if userID == "" || !ValidEmoji(emoji) {
		return ErrInvalidEmoji
	}
	emoji = strings.TrimSpace(emoji)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT INTO recent_emojis (user_id, emoji, used_at) VALUES ($1, $2, NOW())
		ON CONFLICT (user_id, emoji) DO UPDATE SET used_at = EXCLUDED.used_at`, userID, emoji); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM recent_emojis WHERE user_id = $1 AND emoji NOT IN (
		SELECT emoji FROM recent_emojis WHERE user_id = $1 ORDER BY used_at DESC LIMIT $2)`, userID, RecentEmojiLimit); err != nil {
		return err
	}
	return tx.Commit()
}

// List returns up to limit emojis, most recently used first.
func (r *EmojiRepo) List(ctx context.Context, userID string, limit int) ([]string, error) {
	if limit <= 0 || limit > RecentEmojiLimit {
		limit = RecentEmojiLimit
	}
	emojis := []string{}
	if err := r.db.SelectContext(ctx, &emojis, `SELECT emoji FROM recent_emojis WHERE user_id = $1 ORDER BY used_at DESC, emoji LIMIT $2`, userID, limit); err != nil {
		return nil, err
	}
	return emojis, nil
}

package database

import (
	"database/sql"
	"fmt"
	"time"
)

var _ PostRepository = (*PostRepo)(nil)

// PostRepo handles database operations for downloaded content items
type PostRepo struct {
	db *DB
}

func NewPostRepository(db *DB) *PostRepo {
	return &PostRepo{db: db}
}

// PostExists reports whether a row for the remote content id is already
// recorded. A present row means the item was downloaded before and must be
// skipped.
func (r *PostRepo) PostExists(remoteID string) (bool, error) {
	var id int64
	err := r.db.QueryRow(`SELECT id FROM posts WHERE remote_id = ? LIMIT 1`, remoteID).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check post existence: %w", err)
	}
	return true, nil
}

// CreatePost records a materialized content item. Called only after the media
// files landed on disk.
func (r *PostRepo) CreatePost(post Post) error {
	downloadedAt := post.DownloadedAt
	if downloadedAt.IsZero() {
		downloadedAt = time.Now().UTC()
	}

	var publishedAt sql.NullTime
	if post.PublishedAt != nil {
		publishedAt = sql.NullTime{Time: *post.PublishedAt, Valid: true}
	}

	_, err := r.db.Exec(`
		INSERT INTO posts (remote_id, account_id, kind, caption, media_path, cover_path, published_at, downloaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, post.RemoteID, post.AccountID, post.Kind, post.Caption,
		post.MediaPath, post.CoverPath, publishedAt, downloadedAt)
	if err != nil {
		return fmt.Errorf("failed to create post: %w", err)
	}

	return nil
}

func (r *PostRepo) GetPostCount() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM posts`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count posts: %w", err)
	}
	return count, nil
}

func (r *PostRepo) GetPostCountByAccount(accountID int64) (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM posts WHERE account_id = ?`, accountID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count posts for account: %w", err)
	}
	return count, nil
}

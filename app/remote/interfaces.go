package remote

import (
	"context"
	"time"

	"github.com/Everless321/dYm-web/app/database"
)

// RemotePost is one content item as listed by the remote platform, before
// any media is fetched
type RemotePost struct {
	RemoteID    string // Stable remote content id, never reused
	Caption     string
	Kind        string // database.PostKindVideo or database.PostKindGallery
	MediaURL    string
	CoverURL    string
	ImageURLs   []string // Populated for galleries
	PublishedAt *time.Time
}

// Materialized describes where a post's media landed on disk
type Materialized struct {
	MediaPath string
	CoverPath string
}

// Client is the boundary to the remote platform. ListPosts enumerates an
// account's content newest-first; max is a listing cap hint (0 = no cap).
// Download fetches the media for one post into dir.
type Client interface {
	ListPosts(ctx context.Context, account database.Account, max int) ([]RemotePost, error)
	Download(ctx context.Context, post RemotePost, dir string) (*Materialized, error)
}

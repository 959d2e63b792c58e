package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/Everless321/dYm-web/app/database"
)

var _ Client = (*FeedClient)(nil)

// FeedClient lists a creator's content through their syndication/media feed
// and materializes enclosures over plain HTTP. The entry GUID serves as the
// stable remote content id.
type FeedClient struct {
	httpClient *http.Client
	parser     *gofeed.Parser
	credential string
	userAgent  string
}

func NewFeedClient(credential, userAgent string) *FeedClient {
	return &FeedClient{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		parser:     gofeed.NewParser(),
		credential: credential,
		userAgent:  userAgent,
	}
}

// ListPosts fetches and parses the account's feed. Feeds list newest entries
// first; max truncates the listing (0 = everything the feed yields).
func (c *FeedClient) ListPosts(ctx context.Context, account database.Account, max int) ([]RemotePost, error) {
	if account.FeedURL == "" {
		return nil, fmt.Errorf("account %s has no feed URL", account.RemoteKey)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", account.FeedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	feed, err := c.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	posts := make([]RemotePost, 0, len(feed.Items))
	for _, item := range feed.Items {
		post := c.normalizeItem(item)
		if post.RemoteID == "" {
			continue
		}
		posts = append(posts, post)
		if max > 0 && len(posts) >= max {
			break
		}
	}

	return posts, nil
}

// Download materializes a post's media into dir/<remote id>/. The cover is
// best-effort; a missing cover does not fail the download.
func (c *FeedClient) Download(ctx context.Context, post RemotePost, dir string) (*Materialized, error) {
	postDir := filepath.Join(dir, post.RemoteID)
	if err := os.MkdirAll(postDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create post directory: %w", err)
	}

	result := &Materialized{}

	switch post.Kind {
	case database.PostKindGallery:
		for i, imageURL := range post.ImageURLs {
			name := fmt.Sprintf("image_%02d%s", i+1, orDefault(urlExt(imageURL), ".jpg"))
			target := filepath.Join(postDir, name)
			if err := c.fetchFile(ctx, imageURL, target); err != nil {
				return nil, fmt.Errorf("failed to download image %d: %w", i+1, err)
			}
			if result.MediaPath == "" {
				result.MediaPath = postDir
			}
		}
		if result.MediaPath == "" {
			return nil, fmt.Errorf("gallery %s has no image URLs", post.RemoteID)
		}
	default:
		if post.MediaURL == "" {
			return nil, fmt.Errorf("post %s has no media URL", post.RemoteID)
		}
		target := filepath.Join(postDir, "media"+orDefault(urlExt(post.MediaURL), ".mp4"))
		if err := c.fetchFile(ctx, post.MediaURL, target); err != nil {
			return nil, fmt.Errorf("failed to download media: %w", err)
		}
		result.MediaPath = target
	}

	if post.CoverURL != "" {
		target := filepath.Join(postDir, "cover"+orDefault(urlExt(post.CoverURL), ".jpg"))
		if err := c.fetchFile(ctx, post.CoverURL, target); err == nil {
			result.CoverPath = target
		}
	}

	return result, nil
}

func (c *FeedClient) normalizeItem(item *gofeed.Item) RemotePost {
	post := RemotePost{
		RemoteID:    orDefault(item.GUID, item.Link),
		Caption:     item.Title,
		Kind:        database.PostKindVideo,
		PublishedAt: item.PublishedParsed,
	}

	if item.Image != nil {
		post.CoverURL = item.Image.URL
	}

	// RSS 2.0 allows a single enclosure per item; treat image enclosures as
	// single-image galleries
	if len(item.Enclosures) > 0 && item.Enclosures[0] != nil {
		enclosure := item.Enclosures[0]
		if strings.HasPrefix(enclosure.Type, "image/") {
			post.Kind = database.PostKindGallery
			post.ImageURLs = []string{enclosure.URL}
		} else {
			post.MediaURL = enclosure.URL
		}
	}

	// Media RSS style feeds may carry multiple image contents
	if media, ok := item.Extensions["media"]; ok {
		for _, content := range media["content"] {
			mediaURL := content.Attrs["url"]
			if mediaURL == "" {
				continue
			}
			if strings.HasPrefix(content.Attrs["type"], "image/") || content.Attrs["medium"] == "image" {
				post.ImageURLs = append(post.ImageURLs, mediaURL)
			} else if post.MediaURL == "" {
				post.MediaURL = mediaURL
			}
		}
		if post.MediaURL == "" && len(post.ImageURLs) > 0 {
			post.Kind = database.PostKindGallery
		}
	}

	return post
}

func (c *FeedClient) fetchFile(ctx context.Context, rawURL, target string) error {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	tmp := target + ".part"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	if _, err := io.Copy(file, resp.Body); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close file: %w", err)
	}

	return os.Rename(tmp, target)
}

func (c *FeedClient) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	if c.credential != "" {
		req.Header.Set("Cookie", c.credential)
	}
}

// orDefault mirrors cmp.Or for two strings (cmp.Or requires Go 1.22).
func orDefault(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func urlExt(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return path.Ext(parsed.Path)
}

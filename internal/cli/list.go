package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mikig28/secbrain/internal/classify"
	"github.com/mikig28/secbrain/internal/storage"
)

type entryJSON struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type videoJSON struct {
	ID        int64     `json:"id"`
	VideoID   string    `json:"video_id"`
	URL       string    `json:"url"`
	Type      string    `json:"type"`
	ImageURL  string    `json:"image_url,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type linkJSON struct {
	ID        int64     `json:"id"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Platform  string    `json:"platform"`
	CreatedAt time.Time `json:"created_at"`
}

// Execute implements the go-flags Commander interface for ListCommand.
func (c *ListCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}

	ctx := context.Background()
	store, db, _, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	defer store.Close()

	return c.executeWithStore(ctx, store)
}

// executeWithStore runs list against a provided store (for testing).
func (c *ListCommand) executeWithStore(ctx context.Context, store storage.Store) error {
	q, err := c.query()
	if err != nil {
		return err
	}

	switch strings.ToLower(c.Args.Kind) {
	case "entries", "thoughts":
		return c.listEntries(ctx, store, q)
	case "videos":
		return c.listVideos(ctx, store, q)
	case "links":
		return c.listLinks(ctx, store, q)
	default:
		return fmt.Errorf("unknown kind %q (use entries, videos or links)", c.Args.Kind)
	}
}

func (c *ListCommand) query() (storage.ListQuery, error) {
	if c.Limit < 0 || c.Offset < 0 {
		return storage.ListQuery{}, fmt.Errorf("--limit and --offset must not be negative")
	}
	q := storage.ListQuery{Limit: c.Limit, Offset: c.Offset}
	if c.Since != "" {
		d, err := parseDuration(c.Since)
		if err != nil {
			return q, fmt.Errorf("--since: %w", err)
		}
		q.Since = time.Now().Add(-d)
	}
	return q, nil
}

func (c *ListCommand) listEntries(ctx context.Context, store storage.Store, q storage.ListQuery) error {
	q.Source = storage.SourceWhatsApp
	entries, err := store.ListEntries(ctx, q)
	if err != nil {
		return fmt.Errorf("list entries: %w", err)
	}

	if c.globals != nil && c.globals.JSON {
		out := make([]entryJSON, len(entries))
		for i, e := range entries {
			out[i] = entryJSON{ID: e.ID, Title: e.Title, Content: e.Content, CreatedAt: e.CreatedAt}
		}
		return printJSON(out)
	}

	if len(entries) == 0 {
		fmt.Println("No entries.")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%s  %-28s %s\n", e.CreatedAt.Local().Format("2006-01-02 15:04"), truncate(e.Title, 28), truncate(oneLine(e.Content), 60))
	}
	return nil
}

func (c *ListCommand) listVideos(ctx context.Context, store storage.Store, q storage.ListQuery) error {
	switch c.Type {
	case "", storage.VideoTypeVideo, storage.VideoTypeImage:
		q.Type = c.Type
	default:
		return fmt.Errorf("--type must be %s or %s", storage.VideoTypeVideo, storage.VideoTypeImage)
	}

	videos, err := store.ListVideos(ctx, q)
	if err != nil {
		return fmt.Errorf("list videos: %w", err)
	}

	if c.globals != nil && c.globals.JSON {
		out := make([]videoJSON, len(videos))
		for i, v := range videos {
			out[i] = videoJSON{ID: v.ID, VideoID: v.VideoID, URL: v.URL, Type: v.Type, ImageURL: v.ImageURL, Timestamp: v.Timestamp}
		}
		return printJSON(out)
	}

	if len(videos) == 0 {
		fmt.Println("No videos.")
		return nil
	}
	for _, v := range videos {
		fmt.Printf("%s  %-5s %-36s %s\n", v.Timestamp.Local().Format("2006-01-02 15:04"), v.Type, v.VideoID, v.URL)
	}
	return nil
}

func (c *ListCommand) listLinks(ctx context.Context, store storage.Store, q storage.ListQuery) error {
	if c.Platform != "" {
		p := classify.Platform(strings.ToLower(c.Platform))
		if !knownPlatform(p) {
			return fmt.Errorf("unknown platform %q", c.Platform)
		}
		q.Platform = string(p)
	}

	links, err := store.ListLinks(ctx, q)
	if err != nil {
		return fmt.Errorf("list links: %w", err)
	}

	if c.ByPlatform {
		return c.printLinksByPlatform(links)
	}

	if c.globals != nil && c.globals.JSON {
		out := make([]linkJSON, len(links))
		for i, l := range links {
			out[i] = linkJSON{ID: l.ID, URL: l.URL, Title: l.Title, Platform: l.Platform, CreatedAt: l.CreatedAt}
		}
		return printJSON(out)
	}

	if len(links) == 0 {
		fmt.Println("No links.")
		return nil
	}
	for _, l := range links {
		fmt.Printf("%s  %-9s %s\n", l.CreatedAt.Local().Format("2006-01-02 15:04"), l.Platform, l.URL)
	}
	return nil
}

// printLinksByPlatform groups links the way the classifier would tag them
// today, in platform display order.
func (c *ListCommand) printLinksByPlatform(links []storage.Link) error {
	urls := make([]string, len(links))
	for i, l := range links {
		urls[i] = l.URL
	}
	grouped := classify.SortByPlatform(urls)

	if c.globals != nil && c.globals.JSON {
		out := make(map[string][]string, len(grouped))
		for p, us := range grouped {
			if len(us) > 0 {
				out[string(p)] = us
			}
		}
		return printJSON(out)
	}

	printed := false
	for _, p := range classify.Platforms {
		us := grouped[p]
		if len(us) == 0 {
			continue
		}
		if printed {
			fmt.Println()
		}
		fmt.Printf("%s (%d)\n", p.Title(), len(us))
		for _, u := range us {
			fmt.Printf("  %s\n", u)
		}
		printed = true
	}
	if !printed {
		fmt.Println("No links.")
	}
	return nil
}

func knownPlatform(p classify.Platform) bool {
	for _, known := range classify.Platforms {
		if known == p {
			return true
		}
	}
	return false
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mikig28/secbrain/internal/storage"
)

// statusJSON is the JSON output structure for the status command.
type statusJSON struct {
	Version           string              `json:"version"`
	DatabasePath      string              `json:"database_path"`
	DatabaseSizeBytes int64               `json:"database_size_bytes"`
	TotalEntries      int64               `json:"total_entries"`
	TotalVideos       int64               `json:"total_videos"`
	TotalImages       int64               `json:"total_images"`
	TotalLinks        int64               `json:"total_links"`
	NewestEntry       string              `json:"newest_entry,omitempty"`
	NewestVideo       string              `json:"newest_video,omitempty"`
	TopPlatforms      []platformCountJSON `json:"top_platforms"`
	DaemonRunning     bool                `json:"daemon_running"`
	PollerState       string              `json:"poller_state,omitempty"`
}

type platformCountJSON struct {
	Platform string `json:"platform"`
	Count    int64  `json:"count"`
}

// daemonHealth is what the daemon's /status endpoint reports.
type daemonHealth struct {
	Running bool
	Poller  string
}

// Execute implements the go-flags Commander interface for StatusCommand.
func (c *StatusCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}

	store, db, dbPath, err := openStore(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	defer store.Close()

	return c.executeWithStore(store, db, dbPath, checkDaemon(daemonURL(cfg)))
}

// executeWithStore runs status against a provided store and db (for testing).
func (c *StatusCommand) executeWithStore(store storage.Store, db *sql.DB, dbPath string, daemon daemonHealth) error {
	ctx := context.Background()

	stats, err := store.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	dbSize := getDatabaseSize(db, dbPath)

	if c.globals != nil && c.globals.JSON {
		return c.printStatusJSON(stats, dbPath, dbSize, daemon)
	}
	return c.printStatusHuman(stats, dbPath, dbSize, daemon)
}

func (c *StatusCommand) printStatusHuman(stats *storage.Stats, dbPath string, dbSize int64, daemon daemonHealth) error {
	fmt.Println("secbrain Status")
	fmt.Println("===============")
	fmt.Printf("Version:       %s\n", c.version)
	fmt.Printf("Database:      %s (%s)\n", dbPath, formatBytes(dbSize))
	fmt.Printf("Entries:       %s\n", formatNumber(stats.TotalEntries))
	fmt.Printf("Videos:        %s\n", formatNumber(stats.TotalVideos))
	fmt.Printf("Images:        %s\n", formatNumber(stats.TotalImages))
	fmt.Printf("Links:         %s\n", formatNumber(stats.TotalLinks))

	if !stats.NewestEntry.IsZero() {
		fmt.Printf("Newest entry:  %s\n", stats.NewestEntry.Local().Format("2006-01-02 15:04"))
	}
	if !stats.NewestVideo.IsZero() {
		fmt.Printf("Newest video:  %s\n", stats.NewestVideo.Local().Format("2006-01-02 15:04"))
	}

	if len(stats.TopPlatforms) > 0 {
		fmt.Println()
		fmt.Println("Links by Platform:")
		for _, p := range stats.TopPlatforms {
			fmt.Printf("  %-20s %s\n", p.Platform, formatNumber(p.Count))
		}
	}

	fmt.Println()
	if daemon.Running {
		fmt.Println("Daemon:        running")
		fmt.Printf("Poller:        %s\n", daemon.Poller)
	} else {
		fmt.Println("Daemon:        not running")
	}

	return nil
}

func (c *StatusCommand) printStatusJSON(stats *storage.Stats, dbPath string, dbSize int64, daemon daemonHealth) error {
	out := statusJSON{
		Version:           c.version,
		DatabasePath:      dbPath,
		DatabaseSizeBytes: dbSize,
		TotalEntries:      stats.TotalEntries,
		TotalVideos:       stats.TotalVideos,
		TotalImages:       stats.TotalImages,
		TotalLinks:        stats.TotalLinks,
		TopPlatforms:      make([]platformCountJSON, len(stats.TopPlatforms)),
		DaemonRunning:     daemon.Running,
		PollerState:       daemon.Poller,
	}

	if !stats.NewestEntry.IsZero() {
		out.NewestEntry = stats.NewestEntry.UTC().Format(time.RFC3339)
	}
	if !stats.NewestVideo.IsZero() {
		out.NewestVideo = stats.NewestVideo.UTC().Format(time.RFC3339)
	}

	for i, p := range stats.TopPlatforms {
		out.TopPlatforms[i] = platformCountJSON{Platform: p.Platform, Count: p.Count}
	}

	return printJSON(out)
}

// getDatabaseSize returns the database file size in bytes, falling back to
// page_count * page_size when the file cannot be stat'ed.
func getDatabaseSize(db *sql.DB, dbPath string) int64 {
	if info, err := os.Stat(dbPath); err == nil {
		return info.Size()
	}

	var pageCount, pageSize int64
	if err := db.QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
		return 0
	}
	if err := db.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return 0
	}
	return pageCount * pageSize
}

// checkDaemon GETs the daemon's /status endpoint. The daemon counts as
// running if it answers within 1 second.
func checkDaemon(baseURL string) daemonHealth {
	client := &http.Client{Timeout: 1 * time.Second}
	resp, err := client.Get(baseURL + "/status")
	if err != nil {
		return daemonHealth{}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return daemonHealth{}
	}

	var body struct {
		Poller string `json:"poller"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return daemonHealth{Running: true, Poller: body.Poller}
}

// formatBytes formats a byte count into a human-readable string.
func formatBytes(b int64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// formatNumber formats an int64 with comma separators.
func formatNumber(n int64) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}

	var result strings.Builder
	remainder := len(s) % 3
	if remainder > 0 {
		result.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if i > 0 {
			result.WriteString(",")
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}

package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Execute implements the go-flags Commander interface for PurgeCommand.
func (c *PurgeCommand) Execute(args []string) error {
	if !c.All {
		return fmt.Errorf("purge requires --all flag for safety")
	}

	if !c.Force {
		fmt.Println("⚠ WARNING: This will permanently delete ALL secbrain data.")
		fmt.Println("  - All entries (thoughts)")
		fmt.Println("  - All videos and stored images")
		fmt.Println("  - All links")
		fmt.Println()
		fmt.Println("This action cannot be undone.")
		fmt.Println()
		fmt.Print(`Type "PURGE" to confirm: `)

		in := c.stdin
		if in == nil {
			in = os.Stdin
		}
		scanner := bufio.NewScanner(in)
		if !scanner.Scan() {
			return fmt.Errorf("aborted: no input received")
		}
		input := strings.TrimSpace(scanner.Text())
		if input != "PURGE" {
			return fmt.Errorf("aborted: confirmation text did not match")
		}
	}

	ctx := context.Background()
	store, imagesDir := c.store, c.images
	if store == nil {
		cfg, err := loadConfig(c.globals)
		if err != nil {
			return err
		}
		s, db, _, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		defer s.Close()
		store = s

		if imagesDir, err = cfg.ImagesDir(); err != nil {
			return err
		}
	}

	if err := store.PurgeAll(ctx); err != nil {
		return fmt.Errorf("purge failed: %w", err)
	}
	removed, err := removeImages(imagesDir)
	if err != nil {
		return fmt.Errorf("remove images: %w", err)
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(map[string]interface{}{
			"purged":         true,
			"images_removed": removed,
			"message":        "all data deleted",
		})
	}

	fmt.Printf("Purged all data (%d image files removed). secbrain is empty.\n", removed)
	return nil
}

// removeImages deletes the regular files in dir. A missing dir is empty.
func removeImages(dir string) (int, error) {
	if dir == "" {
		return 0, nil
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mikig28/secbrain/internal/extract"
	"github.com/mikig28/secbrain/internal/ingest"
	"github.com/mikig28/secbrain/internal/storage"
)

// Execute implements the go-flags Commander interface for AddCommand.
func (c *AddCommand) Execute(args []string) error {
	if strings.TrimSpace(c.Text) == "" {
		return fmt.Errorf("--text is required for add command")
	}

	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}
	log, err := commandLogger(cfg, c.globals)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx := context.Background()
	store, db, _, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()
	defer store.Close()

	images, err := openImages(cfg)
	if err != nil {
		return err
	}

	return c.executeWithStore(ctx, store, images, log)
}

// executeWithStore runs the add logic against a provided store (used by tests).
func (c *AddCommand) executeWithStore(ctx context.Context, store storage.Store, images storage.ImageStore, log *zap.Logger) error {
	msg := extract.Extract(extract.RawNode{ExternalID: "manual-" + uuid.NewString(), Text: c.Text})
	if sender := strings.TrimSpace(c.Sender); sender != "" {
		msg.Sender = sender
	}
	if msg.Ignorable() {
		return fmt.Errorf("message has no content to store")
	}

	proc := ingest.NewProcessor(ingest.NewAdapter(store, images), log)
	out := proc.Process(ctx, msg)

	if c.globals != nil && c.globals.JSON {
		return printJSON(map[string]interface{}{
			"sender":  msg.Sender,
			"urls":    msg.URLs,
			"outcome": out,
		})
	}

	fmt.Printf("Processed message from %s\n", msg.Sender)
	fmt.Printf("  URLs:        %d\n", len(msg.URLs))
	fmt.Printf("  Videos:      %d new\n", out.VideosAdded)
	fmt.Printf("  Links:       %d new\n", out.LinksAdded)
	fmt.Printf("  Entries:     %d new\n", out.EntriesAdded)
	fmt.Printf("  Duplicates:  %d\n", out.Duplicates)
	if out.Errors > 0 {
		return fmt.Errorf("%d store operations failed", out.Errors)
	}
	return nil
}

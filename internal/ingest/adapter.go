// Package ingest persists normalized chat messages: it routes each URL
// through the classifier and every write through a check-then-insert
// adapter over the store.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mikig28/secbrain/internal/classify"
	"github.com/mikig28/secbrain/internal/extract"
	"github.com/mikig28/secbrain/internal/storage"
)

// Sink is the write side the Processor depends on.
type Sink interface {
	UpsertVideoIfAbsent(ctx context.Context, videoID, url string) (bool, error)
	UpsertLinkIfAbsent(ctx context.Context, url string, platform classify.Platform) (bool, error)
	UpsertEntryIfAbsent(ctx context.Context, content, sender string) (bool, error)
	StoreImage(ctx context.Context, data []byte) (string, error)
}

// Adapter implements Sink over a Store and an ImageStore. Deduplication
// is an existence check followed by an insert; two writers racing on the
// same key can both insert.
type Adapter struct {
	store  storage.Store
	images storage.ImageStore
	now    func() time.Time
	newID  func() string
}

// NewAdapter returns an Adapter. images may be nil when image storage is
// not configured; StoreImage then fails.
func NewAdapter(store storage.Store, images storage.ImageStore) *Adapter {
	return &Adapter{
		store:  store,
		images: images,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// UpsertVideoIfAbsent inserts a video row unless one with videoID exists.
func (a *Adapter) UpsertVideoIfAbsent(ctx context.Context, videoID, url string) (bool, error) {
	found, err := a.store.HasVideo(ctx, videoID)
	if err != nil {
		return false, err
	}
	if found {
		return false, nil
	}

	v := &storage.Video{
		VideoID:   videoID,
		URL:       url,
		Timestamp: a.now(),
		Type:      storage.VideoTypeVideo,
	}
	if err := a.store.AddVideo(ctx, v); err != nil {
		return false, err
	}
	return true, nil
}

// UpsertLinkIfAbsent inserts a link unless the exact URL is already stored.
func (a *Adapter) UpsertLinkIfAbsent(ctx context.Context, url string, platform classify.Platform) (bool, error) {
	found, err := a.store.HasLink(ctx, url)
	if err != nil {
		return false, err
	}
	if found {
		return false, nil
	}

	l := &storage.Link{
		URL:       url,
		Title:     platform.Title(),
		Platform:  string(platform),
		CreatedAt: a.now(),
	}
	if err := a.store.AddLink(ctx, l); err != nil {
		return false, err
	}
	return true, nil
}

// UpsertEntryIfAbsent inserts a WhatsApp thought unless an entry with the
// same content from the same source exists.
func (a *Adapter) UpsertEntryIfAbsent(ctx context.Context, content, sender string) (bool, error) {
	found, err := a.store.HasEntry(ctx, content, storage.SourceWhatsApp)
	if err != nil {
		return false, err
	}
	if found {
		return false, nil
	}

	now := a.now()
	e := &storage.Entry{
		ID:        a.newID(),
		Title:     entryTitle(sender),
		Content:   content,
		Type:      storage.EntryTypeThought,
		Source:    storage.SourceWhatsApp,
		Status:    storage.StatusActive,
		Tags:      []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.AddEntry(ctx, e); err != nil {
		return false, err
	}
	return true, nil
}

// StoreImage writes data as <id>.jpg and records it as an image row. It
// never deduplicates. The returned id is the row's video id.
func (a *Adapter) StoreImage(ctx context.Context, data []byte) (string, error) {
	if a.images == nil {
		return "", fmt.Errorf("store image: no image store configured")
	}

	id := a.newID()
	publicURL, err := a.images.Save(ctx, id+".jpg", data)
	if err != nil {
		return "", fmt.Errorf("store image: %w", err)
	}

	v := &storage.Video{
		VideoID:   id,
		URL:       publicURL,
		Timestamp: a.now(),
		Type:      storage.VideoTypeImage,
		ImageURL:  publicURL,
	}
	if err := a.store.AddVideo(ctx, v); err != nil {
		if rerr := a.images.Remove(id + ".jpg"); rerr != nil {
			return "", fmt.Errorf("record image %s: %w (cleanup: %v)", id, err, rerr)
		}
		return "", fmt.Errorf("record image %s: %w", id, err)
	}
	return id, nil
}

func entryTitle(sender string) string {
	if sender == "" || sender == extract.UnknownSender {
		return "WhatsApp Message"
	}
	return "Message from " + sender
}

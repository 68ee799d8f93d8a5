package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikig28/secbrain/internal/classify"
	"github.com/mikig28/secbrain/internal/storage"
)

func openTestAdapter(t *testing.T) (*Adapter, *storage.SQLiteStore, string) {
	t.Helper()
	dir := t.TempDir()

	db, err := storage.Open(context.Background(), filepath.Join(dir, "secbrain.db"), "wal")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := storage.NewSQLiteStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	imagesDir := filepath.Join(dir, "images")
	images, err := storage.NewFileImageStore(imagesDir, "/images")
	require.NoError(t, err)

	return NewAdapter(store, images), store, imagesDir
}

func TestUpsertVideoIfAbsent_Idempotent(t *testing.T) {
	a, store, _ := openTestAdapter(t)
	ctx := context.Background()

	inserted, err := a.UpsertVideoIfAbsent(ctx, "abc123XYZ_9", "https://youtu.be/abc123XYZ_9")
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = a.UpsertVideoIfAbsent(ctx, "abc123XYZ_9", "https://www.youtube.com/watch?v=abc123XYZ_9")
	require.NoError(t, err)
	assert.False(t, inserted)

	videos, err := store.ListVideos(ctx, storage.ListQuery{})
	require.NoError(t, err)
	require.Len(t, videos, 1)
	assert.Equal(t, "https://youtu.be/abc123XYZ_9", videos[0].URL)
	assert.Equal(t, storage.VideoTypeVideo, videos[0].Type)
}

func TestUpsertLinkIfAbsent(t *testing.T) {
	a, store, _ := openTestAdapter(t)
	ctx := context.Background()

	inserted, err := a.UpsertLinkIfAbsent(ctx, "https://github.com/a/b", classify.GitHub)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = a.UpsertLinkIfAbsent(ctx, "https://github.com/a/b", classify.GitHub)
	require.NoError(t, err)
	assert.False(t, inserted)

	links, err := store.ListLinks(ctx, storage.ListQuery{})
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "GITHUB Link", links[0].Title)
	assert.Equal(t, "github", links[0].Platform)
}

func TestUpsertEntryIfAbsent(t *testing.T) {
	a, store, _ := openTestAdapter(t)
	ctx := context.Background()
	fixed := time.Date(2024, 3, 14, 10, 32, 0, 0, time.UTC)
	a.now = func() time.Time { return fixed }
	a.newID = func() string { return "entry-1" }

	inserted, err := a.UpsertEntryIfAbsent(ctx, "call mom", "Dana")
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = a.UpsertEntryIfAbsent(ctx, "call mom", "Someone Else")
	require.NoError(t, err)
	assert.False(t, inserted, "dedup key is content and source, not sender")

	entries, err := store.ListEntries(ctx, storage.ListQuery{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "entry-1", e.ID)
	assert.Equal(t, "Message from Dana", e.Title)
	assert.Equal(t, "call mom", e.Content)
	assert.Equal(t, storage.EntryTypeThought, e.Type)
	assert.Equal(t, storage.SourceWhatsApp, e.Source)
	assert.Equal(t, storage.StatusActive, e.Status)
	assert.Empty(t, e.Tags)
	assert.True(t, e.CreatedAt.Equal(fixed))
}

func TestEntryTitle(t *testing.T) {
	assert.Equal(t, "Message from Dana", entryTitle("Dana"))
	assert.Equal(t, "WhatsApp Message", entryTitle("Unknown"))
	assert.Equal(t, "WhatsApp Message", entryTitle(""))
}

func TestStoreImage_AlwaysInserts(t *testing.T) {
	a, store, imagesDir := openTestAdapter(t)
	ctx := context.Background()
	data := []byte{0xff, 0xd8, 0xff, 0xe0}

	id1, err := a.StoreImage(ctx, data)
	require.NoError(t, err)
	id2, err := a.StoreImage(ctx, data)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	images, err := store.ListVideos(ctx, storage.ListQuery{Type: storage.VideoTypeImage})
	require.NoError(t, err)
	require.Len(t, images, 2)
	for _, img := range images {
		assert.Equal(t, "/images/"+img.VideoID+".jpg", img.ImageURL)
		assert.Equal(t, img.ImageURL, img.URL)
	}

	onDisk, err := os.ReadFile(filepath.Join(imagesDir, id1+".jpg"))
	require.NoError(t, err)
	assert.Equal(t, data, onDisk)
}

func TestStoreImage_NoImageStore(t *testing.T) {
	_, store, _ := openTestAdapter(t)
	a := NewAdapter(store, nil)

	_, err := a.StoreImage(context.Background(), []byte{1})
	assert.Error(t, err)
}

// failingStore fails every existence check.
type failingStore struct {
	storage.Store
}

var errStoreDown = errors.New("store down")

func (failingStore) HasVideo(context.Context, string) (bool, error)         { return false, errStoreDown }
func (failingStore) HasLink(context.Context, string) (bool, error)          { return false, errStoreDown }
func (failingStore) HasEntry(context.Context, string, string) (bool, error) { return false, errStoreDown }

func TestAdapter_PropagatesStoreErrors(t *testing.T) {
	a := NewAdapter(failingStore{}, nil)
	ctx := context.Background()

	_, err := a.UpsertVideoIfAbsent(ctx, "abc123XYZ_9", "u")
	assert.ErrorIs(t, err, errStoreDown)
	_, err = a.UpsertLinkIfAbsent(ctx, "u", classify.Other)
	assert.ErrorIs(t, err, errStoreDown)
	_, err = a.UpsertEntryIfAbsent(ctx, "c", "s")
	assert.ErrorIs(t, err, errStoreDown)
}

// rejectingVideoStore fails every videos insert.
type rejectingVideoStore struct {
	storage.Store
}

func (rejectingVideoStore) AddVideo(context.Context, *storage.Video) error { return errStoreDown }

func TestStoreImage_RemovesFileWhenRowFails(t *testing.T) {
	_, store, imagesDir := openTestAdapter(t)
	images, err := storage.NewFileImageStore(imagesDir, "/images")
	require.NoError(t, err)
	a := NewAdapter(rejectingVideoStore{store}, images)

	_, err = a.StoreImage(context.Background(), []byte{0xff, 0xd8})
	assert.ErrorIs(t, err, errStoreDown)

	left, err := os.ReadDir(imagesDir)
	require.NoError(t, err)
	assert.Empty(t, left, "no orphan image file")
}

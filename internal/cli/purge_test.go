package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikig28/secbrain/internal/storage"
)

func seedPurgeData(t *testing.T, store storage.Store, imagesDir string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.AddEntry(ctx, &storage.Entry{ID: "e1", Title: "t", Content: "c", Source: storage.SourceWhatsApp}))
	require.NoError(t, store.AddVideo(ctx, &storage.Video{VideoID: "dQw4w9WgXcQ", URL: "https://youtu.be/dQw4w9WgXcQ"}))
	require.NoError(t, store.AddLink(ctx, &storage.Link{URL: "https://github.com/a", Title: "GITHUB Link", Platform: "github"}))
	require.NoError(t, os.WriteFile(filepath.Join(imagesDir, "img-1.jpg"), []byte{0xff, 0xd8}, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(imagesDir, "img-2.jpg"), []byte{0xff, 0xd8}, 0644))
	require.NoError(t, os.Mkdir(filepath.Join(imagesDir, "keep"), 0755))
}

func assertEmpty(t *testing.T, store storage.Store, imagesDir string) {
	t.Helper()
	stats, err := store.GetStats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalEntries)
	assert.Zero(t, stats.TotalVideos)
	assert.Zero(t, stats.TotalLinks)

	left, err := os.ReadDir(imagesDir)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "keep", left[0].Name())
}

func TestPurge_RequiresAll(t *testing.T) {
	cmd := &PurgeCommand{globals: &GlobalFlags{}}
	err := cmd.Execute(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--all")
}

func TestPurge_Force(t *testing.T) {
	store, _, _ := openTestStore(t)
	imagesDir := t.TempDir()
	seedPurgeData(t, store, imagesDir)

	cmd := &PurgeCommand{All: true, Force: true, globals: &GlobalFlags{}, store: store, images: imagesDir}
	output := captureOutput(t, func() {
		require.NoError(t, cmd.Execute(nil))
	})

	assert.Contains(t, output, "Purged all data (2 image files removed)")
	assertEmpty(t, store, imagesDir)
}

func TestPurge_ConfirmPrompt(t *testing.T) {
	store, _, _ := openTestStore(t)
	imagesDir := t.TempDir()
	seedPurgeData(t, store, imagesDir)

	cmd := &PurgeCommand{All: true, globals: &GlobalFlags{}, stdin: strings.NewReader("PURGE\n"), store: store, images: imagesDir}
	output := captureOutput(t, func() {
		require.NoError(t, cmd.Execute(nil))
	})

	assert.Contains(t, output, `Type "PURGE" to confirm`)
	assertEmpty(t, store, imagesDir)
}

func TestPurge_ConfirmMismatchAborts(t *testing.T) {
	store, _, _ := openTestStore(t)
	imagesDir := t.TempDir()
	seedPurgeData(t, store, imagesDir)

	cmd := &PurgeCommand{All: true, globals: &GlobalFlags{}, stdin: strings.NewReader("purge\n"), store: store, images: imagesDir}
	var err error
	_ = captureOutput(t, func() {
		err = cmd.Execute(nil)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not match")

	stats, err := store.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalEntries)
}

func TestPurge_NoInputAborts(t *testing.T) {
	cmd := &PurgeCommand{All: true, globals: &GlobalFlags{}, stdin: strings.NewReader("")}
	var err error
	_ = captureOutput(t, func() {
		err = cmd.Execute(nil)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no input")
}

func TestPurge_JSON(t *testing.T) {
	store, _, _ := openTestStore(t)
	imagesDir := t.TempDir()
	seedPurgeData(t, store, imagesDir)

	cmd := &PurgeCommand{All: true, Force: true, globals: &GlobalFlags{JSON: true}, store: store, images: imagesDir}
	output := captureOutput(t, func() {
		require.NoError(t, cmd.Execute(nil))
	})

	var out struct {
		Purged        bool `json:"purged"`
		ImagesRemoved int  `json:"images_removed"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &out))
	assert.True(t, out.Purged)
	assert.Equal(t, 2, out.ImagesRemoved)
}

func TestRemoveImages_MissingDir(t *testing.T) {
	n, err := removeImages(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = removeImages("")
	require.NoError(t, err)
	assert.Zero(t, n)
}

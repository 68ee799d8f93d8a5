package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikig28/secbrain/internal/storage"
)

func TestStatus_EmptyDB(t *testing.T) {
	store, db, path := openTestStore(t)

	cmd := &StatusCommand{globals: &GlobalFlags{}, version: "dev"}

	output := captureOutput(t, func() {
		require.NoError(t, cmd.executeWithStore(store, db, path, daemonHealth{}))
	})

	assert.Contains(t, output, "secbrain Status")
	assert.Contains(t, output, "Version:       dev")
	assert.Contains(t, output, "Entries:       0")
	assert.Contains(t, output, "Links:         0")
	assert.Contains(t, output, "Daemon:        not running")
	assert.NotContains(t, output, "Links by Platform")
}

func TestStatus_WithData(t *testing.T) {
	store, db, path := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddEntry(ctx, &storage.Entry{ID: "e1", Title: "Message from Dana", Content: "hi", Source: storage.SourceWhatsApp}))
	require.NoError(t, store.AddVideo(ctx, &storage.Video{VideoID: "dQw4w9WgXcQ", URL: "https://youtu.be/dQw4w9WgXcQ"}))
	require.NoError(t, store.AddVideo(ctx, &storage.Video{VideoID: "img-1", URL: "/images/img-1.jpg", Type: storage.VideoTypeImage, ImageURL: "/images/img-1.jpg"}))
	for _, u := range []string{"https://github.com/a", "https://github.com/b", "https://medium.com/c"} {
		platform := "github"
		if u == "https://medium.com/c" {
			platform = "medium"
		}
		require.NoError(t, store.AddLink(ctx, &storage.Link{URL: u, Title: "x", Platform: platform}))
	}

	cmd := &StatusCommand{globals: &GlobalFlags{}, version: "dev"}
	output := captureOutput(t, func() {
		require.NoError(t, cmd.executeWithStore(store, db, path, daemonHealth{Running: true, Poller: "polling"}))
	})

	assert.Contains(t, output, "Entries:       1")
	assert.Contains(t, output, "Images:        1")
	assert.Contains(t, output, "Links:         3")
	assert.Contains(t, output, "Links by Platform:")
	assert.Contains(t, output, "github")
	assert.Contains(t, output, "Daemon:        running")
	assert.Contains(t, output, "Poller:        polling")
}

func TestStatus_JSON(t *testing.T) {
	store, db, path := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.AddEntry(ctx, &storage.Entry{ID: "e1", Title: "t", Content: "c", Source: storage.SourceWhatsApp}))

	cmd := &StatusCommand{globals: &GlobalFlags{JSON: true}, version: "1.0.0"}
	output := captureOutput(t, func() {
		require.NoError(t, cmd.executeWithStore(store, db, path, daemonHealth{}))
	})

	var out statusJSON
	require.NoError(t, json.Unmarshal([]byte(output), &out))
	assert.Equal(t, "1.0.0", out.Version)
	assert.Equal(t, path, out.DatabasePath)
	assert.Greater(t, out.DatabaseSizeBytes, int64(0))
	assert.Equal(t, int64(1), out.TotalEntries)
	assert.NotEmpty(t, out.NewestEntry)
	assert.False(t, out.DaemonRunning)
	assert.NotNil(t, out.TopPlatforms)
}

func TestCheckDaemon(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/status", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","poller":"awaiting_chat"}`))
	}))
	defer srv.Close()

	health := checkDaemon(srv.URL)
	assert.True(t, health.Running)
	assert.Equal(t, "awaiting_chat", health.Poller)

	srv.Close()
	assert.False(t, checkDaemon(srv.URL).Running)
}

func TestStatus_ViaConfig(t *testing.T) {
	configPath, _ := writeTestConfig(t)

	output := captureOutput(t, func() {
		require.NoError(t, RunWithArgs("dev", []string{"--config", configPath, "status"}))
	})
	assert.Contains(t, output, "Daemon:        not running")
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{2048, "2.0 KB"},
		{5 << 20, "5.0 MB"},
		{3 << 30, "3.0 GB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatBytes(tt.in))
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{123456, "123,456"},
		{1234567, "1,234,567"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatNumber(tt.in))
	}
}

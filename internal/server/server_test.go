package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mikig28/secbrain/internal/ingest"
	"github.com/mikig28/secbrain/internal/poller"
	"github.com/mikig28/secbrain/internal/storage"
)

type fakeController struct {
	startErr error
	stopErr  error
	qr       []byte
	qrErr    error
	starts   int
	stops    int
}

func (f *fakeController) Start(ctx context.Context) error {
	f.starts++
	return f.startErr
}

func (f *fakeController) Stop() error {
	f.stops++
	return f.stopErr
}

func (f *fakeController) Status() poller.Status {
	return poller.Status{State: poller.Polling.String(), Seen: 4}
}

func (f *fakeController) QRCode(ctx context.Context) ([]byte, error) {
	return f.qr, f.qrErr
}

type testEnv struct {
	srv       *Server
	ctl       *fakeController
	store     *storage.SQLiteStore
	imagesDir string
}

func newTestEnv(t *testing.T) *testEnv {
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

	log := zaptest.NewLogger(t)
	ctl := &fakeController{}
	proc := ingest.NewProcessor(ingest.NewAdapter(store, images), log)
	srv := New(store, ctl, proc, Options{
		Addr:           "127.0.0.1:0",
		MaxRequestSize: 1024,
		ImagesDir:      imagesDir,
		ImagesURL:      "/images",
		Version:        "test",
	}, log)

	return &testEnv{srv: srv, ctl: ctl, store: store, imagesDir: imagesDir}
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func TestStatus(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
	assert.Equal(t, "polling", body["poller"])
}

func TestWhatsAppStartStop(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/whatsapp", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	rec = e.do(t, http.MethodDelete, "/api/whatsapp", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	assert.Equal(t, 1, e.ctl.starts)
	assert.Equal(t, 1, e.ctl.stops)
}

func TestWhatsAppStartFailure(t *testing.T) {
	e := newTestEnv(t)
	e.ctl.startErr = errors.New("connect to https://web.whatsapp.com: timeout")

	rec := e.do(t, http.MethodPost, "/api/whatsapp", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	env := decode(t, rec)
	assert.False(t, env.Success)
	assert.Contains(t, env.Error, "timeout")
}

func TestWhatsAppStatus(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/api/whatsapp/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var status poller.Status
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &status))
	assert.Equal(t, "polling", status.State)
	assert.Equal(t, 4, status.Seen)
}

func TestWhatsAppQR(t *testing.T) {
	e := newTestEnv(t)

	e.ctl.qrErr = poller.ErrNotRunning
	rec := e.do(t, http.MethodGet, "/api/whatsapp/qr", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	e.ctl.qrErr = nil
	e.ctl.qr = []byte("\x89PNG")
	rec = e.do(t, http.MethodGet, "/api/whatsapp/qr", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "\x89PNG", rec.Body.String())
}

func TestPostMessage_FeedsAllTables(t *testing.T) {
	e := newTestEnv(t)

	body := `{"text":"watch https://www.youtube.com/watch?v=dQw4w9WgXcQ and https://github.com/golang/go","sender":"Dana"}`
	rec := e.do(t, http.MethodPost, "/api/messages", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out ingest.Outcome
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &out))
	assert.Equal(t, 1, out.VideosAdded)
	assert.Equal(t, 1, out.LinksAdded)
	assert.Equal(t, 1, out.EntriesAdded)

	rec = e.do(t, http.MethodGet, "/api/messages", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var msgs []messageJSON
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, "Message from Dana", msgs[0].Title)

	rec = e.do(t, http.MethodGet, "/api/videos?type=video", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var videos []videoJSON
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &videos))
	require.Len(t, videos, 1)
	assert.Equal(t, "dQw4w9WgXcQ", videos[0].VideoID)

	rec = e.do(t, http.MethodGet, "/api/links?group=platform", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var grouped map[string][]linkJSON
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &grouped))
	require.Len(t, grouped["github"], 1)
	assert.Equal(t, "GITHUB Link", grouped["github"][0].Title)

	rec = e.do(t, http.MethodPost, "/api/messages", body)
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &out))
	assert.Equal(t, 3, out.Duplicates, "replay stores nothing new")
}

func TestPostMessage_Rejects(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/messages", `{"text":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/messages", `{"text":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/messages", `{"text":"`+strings.Repeat("a", 2048)+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.False(t, decode(t, rec).Success)
}

func TestListQueryValidation(t *testing.T) {
	e := newTestEnv(t)

	for _, target := range []string{
		"/api/messages?limit=-1",
		"/api/messages?offset=abc",
		"/api/messages?since=yesterday",
		"/api/videos?type=gif",
		"/api/links?platform=myspace",
	} {
		rec := e.do(t, http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestDeleteEndpoints(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, e.store.AddEntry(ctx, &storage.Entry{ID: "e1", Title: "t", Content: "c", Source: storage.SourceWhatsApp}))
	video := &storage.Video{VideoID: "dQw4w9WgXcQ", URL: "https://youtu.be/dQw4w9WgXcQ"}
	require.NoError(t, e.store.AddVideo(ctx, video))

	rec := e.do(t, http.MethodDelete, "/api/thoughts/e1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = e.do(t, http.MethodDelete, "/api/thoughts/e1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	videos, err := e.store.ListVideos(ctx, storage.ListQuery{})
	require.NoError(t, err)
	require.Len(t, videos, 1)

	rec = e.do(t, http.MethodDelete, "/api/videos/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = e.do(t, http.MethodDelete, "/api/videos/"+strconv.FormatInt(videos[0].ID, 10), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = e.do(t, http.MethodDelete, "/api/links/99", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServesImages(t *testing.T) {
	e := newTestEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(e.imagesDir, "a.jpg"), []byte{0xff, 0xd8}, 0644))

	rec := e.do(t, http.MethodGet, "/images/a.jpg", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []byte{0xff, 0xd8}, rec.Body.Bytes())
}

func TestUnknownRouteUsesEnvelope(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	env := decode(t, rec)
	assert.False(t, env.Success)
	assert.NotEmpty(t, env.Error)
}

package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/mikig28/secbrain/internal/classify"
	"github.com/mikig28/secbrain/internal/extract"
	"github.com/mikig28/secbrain/internal/poller"
	"github.com/mikig28/secbrain/internal/storage"
)

func (s *Server) getStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": s.opts.Version,
		"uptime":  time.Since(s.started).Round(time.Second).String(),
		"poller":  s.ctl.Status().State,
	})
}

// postWhatsApp starts the poller. It returns once polling has begun.
func (s *Server) postWhatsApp(c echo.Context) error {
	if err := s.ctl.Start(c.Request().Context()); err != nil {
		s.log.Error("start poller", zap.Error(err))
		return fail(c, http.StatusInternalServerError, err.Error())
	}
	return ok(c, nil)
}

func (s *Server) deleteWhatsApp(c echo.Context) error {
	if err := s.ctl.Stop(); err != nil {
		s.log.Error("stop poller", zap.Error(err))
		return fail(c, http.StatusInternalServerError, err.Error())
	}
	return ok(c, nil)
}

func (s *Server) getWhatsAppStatus(c echo.Context) error {
	return ok(c, s.ctl.Status())
}

func (s *Server) getWhatsAppQR(c echo.Context) error {
	png, err := s.ctl.QRCode(c.Request().Context())
	if errors.Is(err, poller.ErrNotRunning) {
		return fail(c, http.StatusConflict, err.Error())
	}
	if err != nil {
		return fail(c, http.StatusNotFound, "no QR code on screen: "+err.Error())
	}
	return c.Blob(http.StatusOK, "image/png", png)
}

func (s *Server) listMessages(c echo.Context) error {
	q, err := listQuery(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, err.Error())
	}
	q.Source = storage.SourceWhatsApp
	q.Type = storage.EntryTypeThought

	entries, err := s.store.ListEntries(c.Request().Context(), q)
	if err != nil {
		return err
	}
	return ok(c, toMessages(entries))
}

type messageRequest struct {
	Text   string `json:"text"`
	Sender string `json:"sender"`
}

// postMessage ingests a message that did not come through the chat, using
// the same rules as the poller.
func (s *Server) postMessage(c echo.Context) error {
	var req messageRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "unable to parse request")
	}

	msg := extract.Extract(extract.RawNode{ExternalID: "manual-" + uuid.NewString(), Text: req.Text})
	if sender := strings.TrimSpace(req.Sender); sender != "" {
		msg.Sender = sender
	}
	if msg.Ignorable() {
		return fail(c, http.StatusBadRequest, "text is required")
	}
	return ok(c, s.ingester.Process(c.Request().Context(), msg))
}

func (s *Server) listVideos(c echo.Context) error {
	q, err := listQuery(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, err.Error())
	}
	switch t := c.QueryParam("type"); t {
	case "", storage.VideoTypeVideo, storage.VideoTypeImage:
		q.Type = t
	default:
		return fail(c, http.StatusBadRequest, "type must be video or image")
	}

	videos, err := s.store.ListVideos(c.Request().Context(), q)
	if err != nil {
		return err
	}
	return ok(c, toVideos(videos))
}

func (s *Server) listLinks(c echo.Context) error {
	q, err := listQuery(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, err.Error())
	}
	q.Platform = strings.ToLower(c.QueryParam("platform"))
	if q.Platform != "" && !validPlatform(q.Platform) {
		return fail(c, http.StatusBadRequest, "unknown platform "+strconv.Quote(q.Platform))
	}

	links, err := s.store.ListLinks(c.Request().Context(), q)
	if err != nil {
		return err
	}

	if c.QueryParam("group") == "platform" {
		grouped := make(map[string][]linkJSON)
		for _, l := range links {
			grouped[l.Platform] = append(grouped[l.Platform], toLink(l))
		}
		return ok(c, grouped)
	}

	out := make([]linkJSON, 0, len(links))
	for _, l := range links {
		out = append(out, toLink(l))
	}
	return ok(c, out)
}

func (s *Server) deleteThought(c echo.Context) error {
	return s.deleted(c, s.store.DeleteEntry(c.Request().Context(), c.Param("id")))
}

func (s *Server) deleteVideo(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid id")
	}
	return s.deleted(c, s.store.DeleteVideo(c.Request().Context(), id))
}

func (s *Server) deleteLink(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid id")
	}
	return s.deleted(c, s.store.DeleteLink(c.Request().Context(), id))
}

func (s *Server) deleted(c echo.Context, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fail(c, http.StatusNotFound, "not found")
	}
	if err != nil {
		return err
	}
	return ok(c, nil)
}

func listQuery(c echo.Context) (storage.ListQuery, error) {
	var q storage.ListQuery
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return q, errors.New("limit must be a non-negative integer")
		}
		q.Limit = n
	}
	if v := c.QueryParam("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return q, errors.New("offset must be a non-negative integer")
		}
		q.Offset = n
	}
	if v := c.QueryParam("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return q, errors.New("since must be an RFC 3339 timestamp")
		}
		q.Since = t
	}
	return q, nil
}

func validPlatform(p string) bool {
	for _, known := range classify.Platforms {
		if string(known) == p {
			return true
		}
	}
	return false
}

package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mikig28/secbrain/internal/storage"
)

type response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func ok(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, response{Success: true, Data: data})
}

func fail(c echo.Context, status int, msg string) error {
	return c.JSON(status, response{Success: false, Error: msg})
}

// Wire shapes use the dashboard's camelCase field names.

type messageJSON struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type videoJSON struct {
	ID        int64     `json:"id"`
	VideoID   string    `json:"videoId"`
	URL       string    `json:"url"`
	Type      string    `json:"type"`
	ImageURL  string    `json:"imageUrl,omitempty"`
	Scheduled *bool     `json:"scheduled"`
	Timestamp time.Time `json:"timestamp"`
}

type linkJSON struct {
	ID        int64     `json:"id"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Platform  string    `json:"platform"`
	CreatedAt time.Time `json:"createdAt"`
}

func toMessages(entries []storage.Entry) []messageJSON {
	out := make([]messageJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, messageJSON{ID: e.ID, Title: e.Title, Content: e.Content, Timestamp: e.CreatedAt})
	}
	return out
}

func toVideos(videos []storage.Video) []videoJSON {
	out := make([]videoJSON, 0, len(videos))
	for _, v := range videos {
		out = append(out, videoJSON{
			ID:        v.ID,
			VideoID:   v.VideoID,
			URL:       v.URL,
			Type:      v.Type,
			ImageURL:  v.ImageURL,
			Scheduled: v.Scheduled,
			Timestamp: v.Timestamp,
		})
	}
	return out
}

func toLink(l storage.Link) linkJSON {
	return linkJSON{ID: l.ID, URL: l.URL, Title: l.Title, Platform: l.Platform, CreatedAt: l.CreatedAt}
}

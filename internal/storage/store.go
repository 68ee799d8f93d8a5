package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a row addressed by id does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the persistence operations ingestion and the dashboard
// surface rely on. Has* methods are the existence checks that gate inserts.
type Store interface {
	HasVideo(ctx context.Context, videoID string) (bool, error)
	AddVideo(ctx context.Context, video *Video) error
	HasLink(ctx context.Context, url string) (bool, error)
	AddLink(ctx context.Context, link *Link) error
	HasEntry(ctx context.Context, content, source string) (bool, error)
	AddEntry(ctx context.Context, entry *Entry) error

	ListEntries(ctx context.Context, q ListQuery) ([]Entry, error)
	ListVideos(ctx context.Context, q ListQuery) ([]Video, error)
	ListLinks(ctx context.Context, q ListQuery) ([]Link, error)

	DeleteEntry(ctx context.Context, id string) error
	DeleteVideo(ctx context.Context, id int64) error
	DeleteLink(ctx context.Context, id int64) error
	PurgeAll(ctx context.Context) error
	GetStats(ctx context.Context) (*Stats, error)
	Close() error
}

// timeFormat keeps stored timestamps fixed-width so text ordering matches
// time ordering.
const timeFormat = "2006-01-02T15:04:05.000000Z"

// Open opens (creating if needed) the SQLite database at path and applies
// migrations.
func Open(ctx context.Context, path, journalMode string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := NewMigrationRunner(db, journalMode).Run(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, nil
}

// SQLiteStore implements Store backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB

	// Prepared statements
	hasVideo    *sql.Stmt
	insertVideo *sql.Stmt
	hasLink     *sql.Stmt
	insertLink  *sql.Stmt
	hasEntry    *sql.Stmt
	insertEntry *sql.Stmt
	deleteEntry *sql.Stmt
	deleteVideo *sql.Stmt
	deleteLink  *sql.Stmt
}

// NewSQLiteStore creates a new SQLiteStore from an already-opened and migrated database.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}

	if err := s.prepareStatements(); err != nil {
		s.Close()
		return nil, fmt.Errorf("prepare statements: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) prepareStatements() error {
	stmts := []struct {
		dst   **sql.Stmt
		query string
	}{
		{&s.hasVideo, `SELECT EXISTS(SELECT 1 FROM videos WHERE video_id = ?)`},
		{&s.insertVideo, `INSERT INTO videos (video_id, url, ts, type, image_url, scheduled) VALUES (?, ?, ?, ?, ?, ?)`},
		{&s.hasLink, `SELECT EXISTS(SELECT 1 FROM links WHERE url = ?)`},
		{&s.insertLink, `INSERT INTO links (url, title, platform, created_at) VALUES (?, ?, ?, ?)`},
		{&s.hasEntry, `SELECT EXISTS(SELECT 1 FROM entries WHERE content = ? AND source = ?)`},
		{&s.insertEntry, `
			INSERT INTO entries (id, title, content, type, source, status, tags, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`},
		{&s.deleteEntry, `DELETE FROM entries WHERE id = ?`},
		{&s.deleteVideo, `DELETE FROM videos WHERE id = ?`},
		{&s.deleteLink, `DELETE FROM links WHERE id = ?`},
	}

	for _, st := range stmts {
		prepared, err := s.db.Prepare(st.query)
		if err != nil {
			return err
		}
		*st.dst = prepared
	}
	return nil
}

// parseTimestamp tries several common SQLite timestamp formats.
func parseTimestamp(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse timestamp: %s", s)
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func exists(ctx context.Context, stmt *sql.Stmt, args ...interface{}) (bool, error) {
	var found bool
	if err := stmt.QueryRowContext(ctx, args...).Scan(&found); err != nil {
		return false, err
	}
	return found, nil
}

// HasVideo reports whether a videos row with this video id exists.
func (s *SQLiteStore) HasVideo(ctx context.Context, videoID string) (bool, error) {
	found, err := exists(ctx, s.hasVideo, videoID)
	if err != nil {
		return false, fmt.Errorf("check video: %w", err)
	}
	return found, nil
}

// AddVideo inserts a videos row. ID is populated and a zero Timestamp is
// set to now. It does not check for duplicates.
func (s *SQLiteStore) AddVideo(ctx context.Context, v *Video) error {
	if v.Timestamp.IsZero() {
		v.Timestamp = time.Now()
	}
	if v.Type == "" {
		v.Type = VideoTypeVideo
	}

	var imageURL sql.NullString
	if v.ImageURL != "" {
		imageURL = sql.NullString{String: v.ImageURL, Valid: true}
	}
	var scheduled sql.NullBool
	if v.Scheduled != nil {
		scheduled = sql.NullBool{Bool: *v.Scheduled, Valid: true}
	}

	res, err := s.insertVideo.ExecContext(ctx,
		v.VideoID, v.URL, formatTimestamp(v.Timestamp), v.Type, imageURL, scheduled,
	)
	if err != nil {
		return fmt.Errorf("insert video: %w", err)
	}
	v.ID, err = res.LastInsertId()
	return err
}

// HasLink reports whether a link with exactly this URL exists.
func (s *SQLiteStore) HasLink(ctx context.Context, url string) (bool, error) {
	found, err := exists(ctx, s.hasLink, url)
	if err != nil {
		return false, fmt.Errorf("check link: %w", err)
	}
	return found, nil
}

// AddLink inserts a links row. It does not check for duplicates.
func (s *SQLiteStore) AddLink(ctx context.Context, l *Link) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	if l.Platform == "" {
		l.Platform = "other"
	}

	res, err := s.insertLink.ExecContext(ctx, l.URL, l.Title, l.Platform, formatTimestamp(l.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert link: %w", err)
	}
	l.ID, err = res.LastInsertId()
	return err
}

// HasEntry reports whether an entry with this content and source exists.
func (s *SQLiteStore) HasEntry(ctx context.Context, content, source string) (bool, error) {
	found, err := exists(ctx, s.hasEntry, content, source)
	if err != nil {
		return false, fmt.Errorf("check entry: %w", err)
	}
	return found, nil
}

// AddEntry inserts an entries row. The caller supplies the ID; type,
// status and timestamps are defaulted when empty.
func (s *SQLiteStore) AddEntry(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		return fmt.Errorf("insert entry: empty id")
	}
	now := time.Now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = e.CreatedAt
	}
	if e.Type == "" {
		e.Type = EntryTypeThought
	}
	if e.Status == "" {
		e.Status = StatusActive
	}
	if e.Tags == nil {
		e.Tags = []string{}
	}

	tags, err := json.Marshal(e.Tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}

	_, err = s.insertEntry.ExecContext(ctx,
		e.ID, e.Title, e.Content, e.Type, e.Source, e.Status, string(tags),
		formatTimestamp(e.CreatedAt), formatTimestamp(e.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	return nil
}

// where accumulates SQL filter clauses and their arguments.
type where struct {
	clauses []string
	args    []interface{}
}

func (w *where) add(clause string, arg interface{}) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, arg)
}

func (w *where) timeRange(column string, q ListQuery) {
	if !q.Since.IsZero() {
		w.add(column+" >= ?", formatTimestamp(q.Since))
	}
	if !q.Until.IsZero() {
		w.add(column+" <= ?", formatTimestamp(q.Until))
	}
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func limit(q ListQuery) (int, int) {
	if q.Limit <= 0 {
		q.Limit = 50
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q.Limit, q.Offset
}

// ListEntries returns entries newest first.
func (s *SQLiteStore) ListEntries(ctx context.Context, q ListQuery) ([]Entry, error) {
	var w where
	if q.Source != "" {
		w.add("source = ?", q.Source)
	}
	if q.Type != "" {
		w.add("type = ?", q.Type)
	}
	w.timeRange("created_at", q)

	n, off := limit(q)
	query := `SELECT id, title, content, type, source, status, tags, created_at, updated_at FROM entries` +
		w.String() + ` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, append(w.args, n, off)...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var tags, created, updated string
		if err := rows.Scan(&e.ID, &e.Title, &e.Content, &e.Type, &e.Source, &e.Status, &tags, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		if err := json.Unmarshal([]byte(tags), &e.Tags); err != nil {
			e.Tags = []string{}
		}
		e.CreatedAt, _ = parseTimestamp(created)
		e.UpdatedAt, _ = parseTimestamp(updated)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListVideos returns videos and images newest first.
func (s *SQLiteStore) ListVideos(ctx context.Context, q ListQuery) ([]Video, error) {
	var w where
	if q.Type != "" {
		w.add("type = ?", q.Type)
	}
	w.timeRange("ts", q)

	n, off := limit(q)
	query := `SELECT id, video_id, url, ts, type, image_url, scheduled FROM videos` +
		w.String() + ` ORDER BY ts DESC, id DESC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, append(w.args, n, off)...)
	if err != nil {
		return nil, fmt.Errorf("query videos: %w", err)
	}
	defer rows.Close()

	videos := []Video{}
	for rows.Next() {
		var v Video
		var ts string
		var imageURL sql.NullString
		var scheduled sql.NullBool
		if err := rows.Scan(&v.ID, &v.VideoID, &v.URL, &ts, &v.Type, &imageURL, &scheduled); err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		v.Timestamp, _ = parseTimestamp(ts)
		v.ImageURL = imageURL.String
		if scheduled.Valid {
			b := scheduled.Bool
			v.Scheduled = &b
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

// ListLinks returns links newest first.
func (s *SQLiteStore) ListLinks(ctx context.Context, q ListQuery) ([]Link, error) {
	var w where
	if q.Platform != "" {
		w.add("platform = ?", q.Platform)
	}
	w.timeRange("created_at", q)

	n, off := limit(q)
	query := `SELECT id, url, title, platform, created_at FROM links` +
		w.String() + ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, append(w.args, n, off)...)
	if err != nil {
		return nil, fmt.Errorf("query links: %w", err)
	}
	defer rows.Close()

	links := []Link{}
	for rows.Next() {
		var l Link
		var created string
		if err := rows.Scan(&l.ID, &l.URL, &l.Title, &l.Platform, &created); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		l.CreatedAt, _ = parseTimestamp(created)
		links = append(links, l)
	}
	return links, rows.Err()
}

func deleted(res sql.Result, err error, what string, id interface{}) error {
	if err != nil {
		return fmt.Errorf("delete %s: %w", what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %v: %w", what, id, ErrNotFound)
	}
	return nil
}

// DeleteEntry removes an entry by id.
func (s *SQLiteStore) DeleteEntry(ctx context.Context, id string) error {
	res, err := s.deleteEntry.ExecContext(ctx, id)
	return deleted(res, err, "entry", id)
}

// DeleteVideo removes a video or image row; its schedule rows cascade.
func (s *SQLiteStore) DeleteVideo(ctx context.Context, id int64) error {
	res, err := s.deleteVideo.ExecContext(ctx, id)
	return deleted(res, err, "video", id)
}

// DeleteLink removes a link by id.
func (s *SQLiteStore) DeleteLink(ctx context.Context, id int64) error {
	res, err := s.deleteLink.ExecContext(ctx, id)
	return deleted(res, err, "link", id)
}

// PurgeAll deletes every ingested row in a single transaction.
func (s *SQLiteStore) PurgeAll(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmts := []string{
		"DELETE FROM video_schedule",
		"DELETE FROM videos",
		"DELETE FROM links",
		"DELETE FROM entries",
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("purge (%s): %w", stmt, err)
		}
	}
	return tx.Commit()
}

// GetStats returns aggregate statistics about the database.
func (s *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	counts := []struct {
		dst   *int64
		query string
	}{
		{&stats.TotalEntries, "SELECT COUNT(*) FROM entries"},
		{&stats.TotalVideos, "SELECT COUNT(*) FROM videos WHERE type = 'video'"},
		{&stats.TotalImages, "SELECT COUNT(*) FROM videos WHERE type = 'image'"},
		{&stats.TotalLinks, "SELECT COUNT(*) FROM links"},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("stats (%s): %w", c.query, err)
		}
	}

	var newestEntry, newestVideo sql.NullString
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(created_at) FROM entries").Scan(&newestEntry); err != nil {
		return nil, fmt.Errorf("newest entry: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(ts) FROM videos").Scan(&newestVideo); err != nil {
		return nil, fmt.Errorf("newest video: %w", err)
	}
	if newestEntry.Valid {
		stats.NewestEntry, _ = parseTimestamp(newestEntry.String)
	}
	if newestVideo.Valid {
		stats.NewestVideo, _ = parseTimestamp(newestVideo.String)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT platform, COUNT(*) AS cnt FROM links GROUP BY platform ORDER BY cnt DESC, platform LIMIT 10",
	)
	if err != nil {
		return nil, fmt.Errorf("top platforms: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pc PlatformCount
		if err := rows.Scan(&pc.Platform, &pc.Count); err != nil {
			return nil, err
		}
		stats.TopPlatforms = append(stats.TopPlatforms, pc)
	}

	return stats, rows.Err()
}

// Close releases all prepared statements. The underlying *sql.DB is NOT
// closed; that is the caller's responsibility.
func (s *SQLiteStore) Close() error {
	stmts := []*sql.Stmt{
		s.hasVideo, s.insertVideo, s.hasLink, s.insertLink,
		s.hasEntry, s.insertEntry, s.deleteEntry, s.deleteVideo, s.deleteLink,
	}
	for _, stmt := range stmts {
		if stmt != nil {
			stmt.Close()
		}
	}
	return nil
}

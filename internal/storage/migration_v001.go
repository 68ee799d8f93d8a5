package storage

import "database/sql"

// migrateV001 creates the initial schema: entries, videos and links with
// the indexes backing the existence checks. Every statement uses IF NOT
// EXISTS for idempotency.
func migrateV001(tx *sql.Tx) error {
	stmts := []string{
		// ── Tables ──────────────────────────────────────────────

		`CREATE TABLE IF NOT EXISTS entries (
			id         TEXT PRIMARY KEY,
			title      TEXT NOT NULL DEFAULT '',
			content    TEXT NOT NULL,
			type       TEXT NOT NULL DEFAULT 'thought',
			source     TEXT NOT NULL DEFAULT 'whatsapp',
			status     TEXT NOT NULL DEFAULT 'active',
			tags       TEXT NOT NULL DEFAULT '[]',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS videos (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			video_id  TEXT NOT NULL,
			url       TEXT NOT NULL,
			ts        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			type      TEXT NOT NULL DEFAULT 'video' CHECK (type IN ('video', 'image')),
			image_url TEXT,
			scheduled BOOLEAN
		)`,

		`CREATE TABLE IF NOT EXISTS links (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			url        TEXT NOT NULL,
			title      TEXT NOT NULL DEFAULT '',
			platform   TEXT NOT NULL DEFAULT 'other',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// ── Indexes ────────────────────────────────────────────
		// Not UNIQUE: uniqueness is a best-effort property of the
		// check-then-insert path, and legacy duplicates must load.

		`CREATE INDEX IF NOT EXISTS idx_entries_content_source ON entries(content, source)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_created_at     ON entries(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_type           ON entries(type)`,
		`CREATE INDEX IF NOT EXISTS idx_videos_video_id        ON videos(video_id)`,
		`CREATE INDEX IF NOT EXISTS idx_videos_ts              ON videos(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_videos_type            ON videos(type)`,
		`CREATE INDEX IF NOT EXISTS idx_links_url              ON links(url)`,
		`CREATE INDEX IF NOT EXISTS idx_links_platform         ON links(platform)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}

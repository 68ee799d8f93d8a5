package storage

import "database/sql"

// migrateV002 adds the calendar's scheduling side-table. Rows are written
// by the dashboard; ingestion only reads the videos.scheduled flag.
func migrateV002(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS video_schedule (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			video_id      INTEGER NOT NULL REFERENCES videos(id) ON DELETE CASCADE,
			scheduled_for DATETIME NOT NULL,
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_video_schedule_video ON video_schedule(video_id)`,
		`CREATE INDEX IF NOT EXISTS idx_video_schedule_for   ON video_schedule(scheduled_for)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

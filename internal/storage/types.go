package storage

import "time"

// SourceWhatsApp is the source recorded on entries ingested from WhatsApp.
const SourceWhatsApp = "whatsapp"

// Entry types and statuses.
const (
	EntryTypeThought = "thought"
	StatusActive     = "active"
)

// Video row types. Images share the videos table.
const (
	VideoTypeVideo = "video"
	VideoTypeImage = "image"
)

// Entry is a free-text thought captured from a chat message.
type Entry struct {
	ID        string
	Title     string
	Content   string
	Type      string
	Source    string
	Status    string
	Tags      []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Video is either a YouTube video reference or a stored chat image.
type Video struct {
	ID        int64
	VideoID   string
	URL       string
	Timestamp time.Time
	Type      string
	ImageURL  string
	Scheduled *bool
}

// Link is a non-video URL tagged with the platform it points at.
type Link struct {
	ID        int64
	URL       string
	Title     string
	Platform  string
	CreatedAt time.Time
}

// ListQuery filters list operations. Fields that do not apply to a table
// are ignored.
type ListQuery struct {
	Source   string
	Type     string
	Platform string
	Since    time.Time
	Until    time.Time
	Limit    int
	Offset   int
}

// Stats holds aggregate statistics about the database.
type Stats struct {
	TotalEntries int64
	TotalVideos  int64
	TotalImages  int64
	TotalLinks   int64
	NewestEntry  time.Time
	NewestVideo  time.Time
	TopPlatforms []PlatformCount
}

// PlatformCount pairs a link platform with its link count.
type PlatformCount struct {
	Platform string
	Count    int64
}

package cli

import (
	"io"

	"github.com/mikig28/secbrain/internal/storage"
)

// GlobalFlags holds flags available to all subcommands.
type GlobalFlags struct {
	Config  string `long:"config" description:"Path to config file" default:""`
	JSON    bool   `long:"json" description:"Output in JSON format"`
	Verbose bool   `long:"verbose" description:"Enable verbose output"`
	Version bool   `long:"version" description:"Show version and exit"`
}

// StatusCommand shows store statistics and whether the daemon responds.
type StatusCommand struct {
	globals *GlobalFlags
	version string
}

// ListCommand prints stored entries, videos or links.
type ListCommand struct {
	Since      string `long:"since" description:"Only rows newer than duration (e.g., 7d, 24h, 2w)"`
	Platform   string `long:"platform" description:"Links only: filter by platform"`
	Type       string `long:"type" description:"Videos only: video or image"`
	ByPlatform bool   `long:"by-platform" description:"Links only: group output by platform"`
	Limit      int    `long:"limit" description:"Maximum results" default:"20"`
	Offset     int    `long:"offset" description:"Skip first N results" default:"0"`

	Args struct {
		Kind string `positional-arg-name:"kind" description:"entries, videos or links"`
	} `positional-args:"yes" required:"yes"`

	globals *GlobalFlags
	version string
}

// AddCommand runs a manually entered message through the ingestion rules.
type AddCommand struct {
	Text   string `long:"text" description:"Message text (required)"`
	Sender string `long:"sender" description:"Sender name" default:"Unknown"`

	globals *GlobalFlags
	version string
}

// ClassifyCommand prints how URLs would be stored.
type ClassifyCommand struct {
	Args struct {
		URLs []string `positional-arg-name:"url" description:"URLs to classify"`
	} `positional-args:"yes" required:"yes"`

	globals *GlobalFlags
	version string
}

// IngestCommand runs the daemon: store, poller and HTTP control surface.
type IngestCommand struct {
	Start    bool `long:"start" description:"Start the WhatsApp poller immediately"`
	Port     int  `long:"port" description:"Override daemon port"`
	Headless bool `long:"headless" description:"Run the browser headless"`

	globals *GlobalFlags
	version string
}

// StartCommand asks a running daemon to start the poller.
type StartCommand struct {
	globals *GlobalFlags
	version string
}

// StopCommand asks a running daemon to stop the poller.
type StopCommand struct {
	globals *GlobalFlags
	version string
}

// PurgeCommand deletes all stored data with safety confirmation.
type PurgeCommand struct {
	All   bool `long:"all" description:"Required flag to confirm purge intent"`
	Force bool `long:"force" description:"Skip safety confirmation prompt"`

	globals *GlobalFlags
	version string
	stdin   io.Reader     // nil means os.Stdin
	store   storage.Store // injectable for testing; nil means open configured store
	images  string        // images directory used with an injected store
}

package cli

import (
	"fmt"

	"github.com/mikig28/secbrain/internal/classify"
)

type classifyJSON struct {
	URL      string `json:"url"`
	Kind     string `json:"kind"`
	VideoID  string `json:"video_id,omitempty"`
	Platform string `json:"platform,omitempty"`
}

// Execute implements the go-flags Commander interface for ClassifyCommand.
func (c *ClassifyCommand) Execute(args []string) error {
	urls := append(c.Args.URLs, args...)
	if len(urls) == 0 {
		return fmt.Errorf("classify requires at least one URL")
	}

	results := make([]classifyJSON, len(urls))
	for i, u := range urls {
		r := classify.Classify(u)
		results[i] = classifyJSON{URL: u, Kind: string(r.Kind)}
		if r.Kind == classify.KindVideo {
			results[i].VideoID = r.VideoID
		} else {
			results[i].Platform = string(r.Platform)
		}
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(results)
	}

	for _, r := range results {
		if r.Kind == string(classify.KindVideo) {
			fmt.Printf("%-6s %-11s %s\n", r.Kind, r.VideoID, r.URL)
		} else {
			fmt.Printf("%-6s %-11s %s\n", r.Kind, r.Platform, r.URL)
		}
	}
	return nil
}

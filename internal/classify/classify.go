// Package classify decides what a URL found in a chat message points at:
// a YouTube video, a link on a known platform, or some other link.
package classify

import (
	"net/url"
	"regexp"
	"strings"
)

// Kind is the outcome class of Classify.
type Kind string

const (
	KindVideo Kind = "video"
	KindLink  Kind = "link"
)

// Platform tags a non-video link.
type Platform string

const (
	Twitter  Platform = "twitter"
	LinkedIn Platform = "linkedin"
	Facebook Platform = "facebook"
	Reddit   Platform = "reddit"
	YouTube  Platform = "youtube"
	GitHub   Platform = "github"
	Medium   Platform = "medium"
	Other    Platform = "other"
)

// Platforms lists every platform tag in display order.
var Platforms = []Platform{Twitter, LinkedIn, Facebook, Reddit, YouTube, GitHub, Medium, Other}

// Result is the classification of one URL. VideoID is set only for
// KindVideo, Platform only for KindLink.
type Result struct {
	Kind     Kind
	VideoID  string
	Platform Platform
}

// platformDomains is matched in order against the lower-cased hostname.
// A domain matches itself and any of its sub-domains.
var platformDomains = []struct {
	platform Platform
	domains  []string
}{
	{Twitter, []string{"x.com", "twitter.com", "t.co"}},
	{LinkedIn, []string{"linkedin.com", "lnkd.in"}},
	{Facebook, []string{"facebook.com", "fb.com", "fb.me"}},
	{Reddit, []string{"reddit.com", "redd.it"}},
	{YouTube, []string{"youtube.com", "youtu.be"}},
	{GitHub, []string{"github.com"}},
	{Medium, []string{"medium.com"}},
}

var youtubeHosts = map[string]bool{
	"youtube.com":              true,
	"www.youtube.com":          true,
	"m.youtube.com":            true,
	"music.youtube.com":        true,
	"youtube-nocookie.com":     true,
	"www.youtube-nocookie.com": true,
}

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// Classify returns a video result for recognised YouTube URLs and a
// platform-tagged link result otherwise. Inputs that are not absolute
// http(s) URLs are {link, other}.
func Classify(raw string) Result {
	u, ok := parseAbsolute(raw)
	if !ok {
		return Result{Kind: KindLink, Platform: Other}
	}
	if id, ok := videoID(u); ok {
		return Result{Kind: KindVideo, VideoID: id}
	}
	return Result{Kind: KindLink, Platform: platformOf(u.Hostname())}
}

// VideoID extracts the canonical YouTube video identifier from raw.
func VideoID(raw string) (string, bool) {
	u, ok := parseAbsolute(raw)
	if !ok {
		return "", false
	}
	return videoID(u)
}

// DetectPlatform tags a URL with its platform. A string that does not
// parse as a URL with a host is retried with "https://" prepended; what
// still fails is Other.
func DetectPlatform(raw string) Platform {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Other
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		u, err = url.Parse("https://" + strings.TrimPrefix(raw, "//"))
		if err != nil || u.Host == "" {
			return Other
		}
	}
	return platformOf(u.Hostname())
}

// SortByPlatform groups URLs by platform, keeping input order within a
// group. Blank strings are dropped. Every platform has a (possibly empty)
// group in the result.
func SortByPlatform(urls []string) map[Platform][]string {
	sorted := make(map[Platform][]string, len(Platforms))
	for _, p := range Platforms {
		sorted[p] = []string{}
	}
	for _, raw := range urls {
		clean := strings.TrimSpace(raw)
		if clean == "" {
			continue
		}
		if strings.Contains(clean, "x.com/") && !strings.HasPrefix(clean, "http") {
			clean = "https://" + clean
		}
		p := DetectPlatform(clean)
		sorted[p] = append(sorted[p], clean)
	}
	return sorted
}

// Title returns the display title stored with a link, e.g. "GITHUB Link".
func (p Platform) Title() string {
	return strings.ToUpper(string(p)) + " Link"
}

func parseAbsolute(raw string) (*url.URL, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil, false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return u, true
	}
	return nil, false
}

func platformOf(host string) Platform {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	for _, pd := range platformDomains {
		for _, d := range pd.domains {
			if host == d || strings.HasSuffix(host, "."+d) {
				return pd.platform
			}
		}
	}
	return Other
}

func videoID(u *url.URL) (string, bool) {
	host := strings.ToLower(u.Hostname())
	segments := strings.Split(strings.Trim(u.EscapedPath(), "/"), "/")

	var candidate string
	switch {
	case host == "youtu.be" || host == "www.youtu.be":
		candidate = segments[0]
	case youtubeHosts[host]:
		switch segments[0] {
		case "watch":
			candidate = u.Query().Get("v")
		case "embed", "shorts", "live", "v":
			if len(segments) > 1 {
				candidate = segments[1]
			}
		}
	default:
		return "", false
	}

	if !videoIDPattern.MatchString(candidate) {
		return "", false
	}
	return candidate, true
}

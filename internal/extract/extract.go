// Package extract turns raw chat DOM records into normalized messages.
package extract

import (
	"regexp"
	"strings"
)

// UnknownSender is used when a node carries no sender metadata.
const UnknownSender = "Unknown"

// RawNode is a message node as scraped from the chat DOM.
type RawNode struct {
	ExternalID   string `json:"id"`
	PrePlainText string `json:"prePlainText"`
	Text         string `json:"text"`
	ImageRef     string `json:"imageUrl"`

	// ImageData holds the decoded image bytes when the caller fetched them.
	ImageData []byte `json:"-"`
}

// Body is the tagged content of a ChatMessage: Text or Image.
type Body interface {
	isBody()
}

// Text is a plain text message.
type Text struct {
	Content string
}

// Image is a message carrying an image. Data may be nil when the image
// could not be captured.
type Image struct {
	Ref  string
	Data []byte
}

func (Text) isBody()  {}
func (Image) isBody() {}

// ChatMessage is a normalized chat message.
type ChatMessage struct {
	ExternalID string
	Sender     string
	Body       Body
	// Text is the visible text, kept for both kinds so captions are
	// scanned for URLs too.
	Text string
	URLs []string
}

var urlPattern = regexp.MustCompile(`https?://[^\s]+`)

// ignoredMarkers are placeholder texts WhatsApp renders for messages that
// carry no content of their own.
var ignoredMarkers = []string{
	"This message was deleted",
	"forwardedForwarded",
}

// Extract normalizes node. A node with an image reference or image data
// is an Image message regardless of its text.
func Extract(node RawNode) ChatMessage {
	text := strings.TrimSpace(node.Text)

	msg := ChatMessage{
		ExternalID: node.ExternalID,
		Sender:     Sender(node.PrePlainText),
		Text:       text,
		URLs:       URLs(text),
	}

	if node.ImageRef != "" || len(node.ImageData) > 0 {
		msg.Body = Image{Ref: node.ImageRef, Data: node.ImageData}
	} else {
		msg.Body = Text{Content: text}
	}
	return msg
}

// URLs returns the http(s) URLs in text in order of first appearance,
// without duplicates.
func URLs(text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

// Sender parses the sender from a pre-plain-text attribute such as
// "[10:32, 3/14/2024] Dana Levi: ".
func Sender(prePlainText string) string {
	i := strings.Index(prePlainText, "]")
	if i < 0 {
		return UnknownSender
	}
	name := strings.TrimSpace(prePlainText[i+1:])
	name = strings.TrimSpace(strings.TrimSuffix(name, ":"))
	if name == "" {
		return UnknownSender
	}
	return name
}

// Ignorable reports whether the message is a placeholder that should be
// marked seen without being processed.
func (m ChatMessage) Ignorable() bool {
	if _, ok := m.Body.(Image); ok {
		return false
	}
	if m.Text == "" {
		return true
	}
	for _, marker := range ignoredMarkers {
		if strings.Contains(m.Text, marker) {
			return true
		}
	}
	return false
}

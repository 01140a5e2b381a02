package models

import (
	"net/url"
	"path"
	"strings"
)

// MediaKind is the media type inferred from an attachment URL extension
type MediaKind string

const (
	MediaKindPNG     MediaKind = "png"
	MediaKindJPEG    MediaKind = "jpeg"
	MediaKindWebP    MediaKind = "webp"
	MediaKindUnknown MediaKind = "unknown"
)

// IsImage reports whether k is one of the still image kinds a result can carry
func (k MediaKind) IsImage() bool {
	switch k {
	case MediaKindPNG, MediaKindJPEG, MediaKindWebP:
		return true
	default:
		return false
	}
}

// Message is a snapshot of one rendered chat message. Attachments are not
// part of the snapshot; they are read on demand because they re-render.
// IDs are assigned by the rendering surface and are not stable across reloads.
type Message struct {
	ID      string `json:"id"`
	Text    string `json:"text"`    // Full rendered text (author, body, buttons)
	Content string `json:"content"` // Body markup text only
}

// Attachment is a media element rendered inside a message
type Attachment struct {
	URL  string    `json:"url"`
	Kind MediaKind `json:"kind"`
}

// NewAttachment builds an attachment and infers its kind from the URL path
func NewAttachment(rawURL string) Attachment {
	return Attachment{URL: rawURL, Kind: InferMediaKind(rawURL)}
}

// InferMediaKind maps the path extension of rawURL to a MediaKind
func InferMediaKind(rawURL string) MediaKind {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}

	switch strings.ToLower(strings.TrimPrefix(path.Ext(p), ".")) {
	case "png":
		return MediaKindPNG
	case "jpg", "jpeg":
		return MediaKindJPEG
	case "webp":
		return MediaKindWebP
	default:
		return MediaKindUnknown
	}
}

// DetectionCriteria identifies the worker's reply among unrelated messages.
// Both fields are matched as case-insensitive substrings of the message text.
type DetectionCriteria struct {
	PromptFragment string `json:"prompt_fragment"`
	AuthorMarker   string `json:"author_marker"`
}

// Matches reports whether text contains both the prompt fragment and the author marker
func (c DetectionCriteria) Matches(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, strings.ToLower(c.PromptFragment)) &&
		strings.Contains(lower, strings.ToLower(c.AuthorMarker))
}

package imagine

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mjrelay/internal/interfaces"
	"github.com/ternarybob/mjrelay/internal/models"
)

const qualitySuffix = "format=png&quality=lossless"

var (
	sizeParamPattern   = regexp.MustCompile(`([&?])(?:width|height)=\d+&?`)
	danglingSeparators = regexp.MustCompile(`[&?]$`)
)

// NormalizeImageURL removes width/height hints and requests a lossless PNG.
// Applying it to its own output returns the same string.
func NormalizeImageURL(raw string) string {
	normalized := raw
	for {
		next := sizeParamPattern.ReplaceAllString(normalized, "$1")
		if next == normalized {
			break
		}
		normalized = next
	}
	normalized = danglingSeparators.ReplaceAllString(normalized, "")

	if strings.Contains(normalized, qualitySuffix) {
		return normalized
	}
	if strings.Contains(normalized, "?") {
		return normalized + "&" + qualitySuffix
	}
	return normalized + "?" + qualitySuffix
}

// Extractor finds the upscaled image among rendered attachments
type Extractor struct {
	mediaHosts []string
	excluded   []string
	logger     arbor.ILogger
}

func newExtractor(opts Options, logger arbor.ILogger) *Extractor {
	return &Extractor{mediaHosts: opts.MediaHosts, excluded: opts.ExcludedFragments, logger: logger}
}

// Qualifies reports whether the attachment is a still image on a known media
// host that is not an avatar or inline preview
func (e *Extractor) Qualifies(attachment models.Attachment) bool {
	if !attachment.Kind.IsImage() {
		return false
	}
	rawURL := attachment.URL
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	if !e.isMediaHost(u.Hostname()) {
		return false
	}
	for _, fragment := range e.excluded {
		if fragment != "" && strings.Contains(rawURL, fragment) {
			return false
		}
	}
	return true
}

func (e *Extractor) isMediaHost(host string) bool {
	host = strings.ToLower(host)
	for _, h := range e.mediaHosts {
		h = strings.ToLower(h)
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// Extract scans messages most recent first, attachments in order, and returns
// the normalized URL of the first qualifying attachment
func (e *Extractor) Extract(ctx context.Context, view interfaces.ConversationView) (string, error) {
	messages, err := view.ListMessages(ctx)
	if err != nil {
		return "", newJobError(KindResourceNotFound, "list messages", err)
	}

	scanned := 0
	for i := len(messages) - 1; i >= 0; i-- {
		attachments, err := view.Attachments(ctx, messages[i])
		if err != nil {
			e.logger.Debug().Err(err).Str("message_id", messages[i].ID).Msg("Failed to read attachments, skipping message")
			continue
		}
		for _, attachment := range attachments {
			scanned++
			if !e.Qualifies(attachment) {
				continue
			}

			normalized := NormalizeImageURL(attachment.URL)
			e.logger.Info().
				Str("message_id", messages[i].ID).
				Str("source_url", attachment.URL).
				Str("image_url", normalized).
				Msg("Image found")
			return normalized, nil
		}
	}

	return "", newJobError(KindResourceNotFound,
		fmt.Sprintf("no image on %v among %d attachments in %d messages", e.mediaHosts, scanned, len(messages)), nil)
}

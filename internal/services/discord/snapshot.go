package discord

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/mjrelay/internal/models"
)

const messageIDAttr = "data-list-item-id"

// messageSnapshot is the JSON shape returned by listMessagesScript
type messageSnapshot struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Content string `json:"content"`
}

func (s messageSnapshot) toMessage() models.Message {
	return models.Message{ID: s.ID, Text: s.Text, Content: s.Content}
}

// listMessagesScript collects id, rendered text and body text of every message.
// Markup is left out: polls run every few seconds over the whole channel.
func listMessagesScript(sel Selectors) string {
	return fmt.Sprintf(`(() => Array.from(document.querySelectorAll(%s)).map(el => {
	const markup = el.querySelector(%s);
	return {
		id: el.getAttribute(%s) || '',
		text: el.innerText || '',
		content: markup ? (markup.innerText || '') : ''
	};
}))()`, jsString(sel.Message), jsString(sel.Markup), jsString(messageIDAttr))
}

// messageHTMLScript returns the current outer HTML of one message, or an empty string when detached
func messageHTMLScript(id string) string {
	return fmt.Sprintf(`(() => {
	const el = Array.from(document.querySelectorAll('[%s]')).find(e => e.getAttribute(%s) === %s);
	return el ? el.outerHTML : '';
})()`, messageIDAttr, jsString(messageIDAttr), jsString(id))
}

// parseAttachments returns the src of every image in the message, in document order
func parseAttachments(html string) ([]models.Attachment, error) {
	if strings.TrimSpace(html) == "" {
		return nil, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message html: %w", err)
	}

	var attachments []models.Attachment
	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		if src, ok := img.Attr("src"); ok && src != "" {
			attachments = append(attachments, models.NewAttachment(src))
		}
	})
	return attachments, nil
}

// hasButton reports whether html contains a button whose text is label
func hasButton(html, label string) (bool, error) {
	if strings.TrimSpace(html) == "" {
		return false, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false, fmt.Errorf("failed to parse message html: %w", err)
	}

	found := false
	doc.Find("button").EachWithBreak(func(_ int, button *goquery.Selection) bool {
		if strings.EqualFold(strings.TrimSpace(button.Text()), label) {
			found = true
			return false
		}
		return true
	})
	return found, nil
}

// buttonXPath locates the labelled button inside one message
func buttonXPath(messageID, label string) string {
	return fmt.Sprintf(`//*[@%s=%s]//button[normalize-space(.)=%s]`,
		messageIDAttr, xpathLiteral(messageID), xpathLiteral(label))
}

// xpathLiteral quotes s for XPath 1.0, which has no escape sequences
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, `'`) {
		return `'` + s + `'`
	}

	parts := strings.Split(s, `"`)
	quoted := make([]string, 0, len(parts)*2)
	for i, part := range parts {
		if i > 0 {
			quoted = append(quoted, `'"'`)
		}
		if part != "" {
			quoted = append(quoted, `"`+part+`"`)
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

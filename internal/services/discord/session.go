package discord

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mjrelay/internal/interfaces"
	"github.com/ternarybob/mjrelay/internal/models"
)

// Session is a ConversationView backed by a live Chrome tab
type Session struct {
	ctx       context.Context
	cancel    context.CancelFunc
	selectors Selectors
	config    ProviderConfig
	logger    arbor.ILogger
	closeOnce sync.Once
}

func newSession(browserCtx context.Context, cancel context.CancelFunc, config ProviderConfig, logger arbor.ILogger) *Session {
	return &Session{
		ctx:       browserCtx,
		cancel:    cancel,
		selectors: config.Selectors,
		config:    config,
		logger:    logger,
	}
}

// run executes actions on the tab unless the caller's context is already done
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return chromedp.Run(s.ctx, actions...)
}

// Open navigates to url and waits for the chat input to become visible
func (s *Session) Open(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.logger.Info().Str("url", url).Msg("Navigating to conversation")

	navCtx, cancel := context.WithTimeout(s.ctx, s.config.NavigationTimeout)
	defer cancel()

	var title, location string
	err := chromedp.Run(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitVisible(s.selectors.Ready, chromedp.ByQuery),
		chromedp.Title(&title),
		chromedp.Location(&location),
	)
	if err != nil {
		// A redirect to the login page is the usual cause
		var current string
		_ = chromedp.Run(s.ctx, chromedp.Location(&current))
		return fmt.Errorf("conversation UI not ready (selector %s, current url %s): %w", s.selectors.Ready, current, err)
	}

	s.logger.Info().
		Str("title", title).
		Str("location", location).
		Msg("Conversation UI ready")
	return nil
}

// ListMessages snapshots all rendered messages, oldest first
func (s *Session) ListMessages(ctx context.Context) ([]models.Message, error) {
	var snapshots []messageSnapshot
	if err := s.run(ctx, chromedp.Evaluate(listMessagesScript(s.selectors), &snapshots)); err != nil {
		return nil, fmt.Errorf("failed to snapshot messages (%s): %w", s.selectors.Message, err)
	}

	messages := make([]models.Message, 0, len(snapshots))
	for _, snap := range snapshots {
		messages = append(messages, snap.toMessage())
	}
	return messages, nil
}

// Attachments re-reads the message element, which may have re-rendered since
// the snapshot. A detached message has no attachments.
func (s *Session) Attachments(ctx context.Context, msg models.Message) ([]models.Attachment, error) {
	html, err := s.messageHTML(ctx, msg.ID)
	if err != nil {
		return nil, err
	}
	if html == "" {
		return nil, nil
	}
	return parseAttachments(html)
}

// FindControl looks for a button labelled label inside msg
func (s *Session) FindControl(ctx context.Context, msg models.Message, label string) (*interfaces.Control, error) {
	html, err := s.messageHTML(ctx, msg.ID)
	if err != nil {
		return nil, err
	}
	found, err := hasButton(html, label)
	if err != nil || !found {
		return nil, err
	}
	return &interfaces.Control{
		MessageID: msg.ID,
		Label:     label,
		Selector:  buttonXPath(msg.ID, label),
	}, nil
}

// Activate clicks the control
func (s *Session) Activate(ctx context.Context, control interfaces.Control) error {
	if err := s.run(ctx, chromedp.Click(control.Selector, chromedp.BySearch, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("failed to click %s: %w", control.Selector, err)
	}
	return nil
}

// FocusInput clicks the chat input
func (s *Session) FocusInput(ctx context.Context) error {
	if err := s.run(ctx, chromedp.Click(s.selectors.Input, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to focus input %s: %w", s.selectors.Input, err)
	}
	return nil
}

// SubmitText types text into the focused element key by key, which the
// command suggestion UI needs in order to react
func (s *Session) SubmitText(ctx context.Context, text string) error {
	if err := s.run(ctx, chromedp.KeyEvent(text)); err != nil {
		return fmt.Errorf("failed to type text: %w", err)
	}
	return nil
}

// PressEnter sends an Enter key press to the focused element
func (s *Session) PressEnter(ctx context.Context) error {
	if err := s.run(ctx, chromedp.KeyEvent(kb.Enter)); err != nil {
		return fmt.Errorf("failed to press enter: %w", err)
	}
	return nil
}

// Close shuts the tab and the browser process
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.logger.Debug().Msg("Browser closed")
	})
	return nil
}

func (s *Session) messageHTML(ctx context.Context, id string) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.Evaluate(messageHTMLScript(id), &html)); err != nil {
		return "", fmt.Errorf("failed to read message %s: %w", id, err)
	}
	return strings.TrimSpace(html), nil
}

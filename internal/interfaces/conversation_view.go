package interfaces

import (
	"context"

	"github.com/ternarybob/mjrelay/internal/models"
)

// Control is a handle to an interactive element scoped to one message
type Control struct {
	MessageID string
	Label     string
	Selector  string // Surface-specific locator used to activate the control
}

// ConversationView is the query/input capability exposed by the rendering surface.
// Messages are returned oldest first.
type ConversationView interface {
	// ListMessages returns the currently rendered messages, oldest first
	ListMessages(ctx context.Context) ([]models.Message, error)

	// Attachments re-reads the media attachments of msg, in render order
	Attachments(ctx context.Context, msg models.Message) ([]models.Attachment, error)

	// FindControl returns nil (and no error) when no control with label exists on msg
	FindControl(ctx context.Context, msg models.Message, label string) (*Control, error)

	Activate(ctx context.Context, control Control) error
	FocusInput(ctx context.Context) error
	SubmitText(ctx context.Context, text string) error
	PressEnter(ctx context.Context) error
}

// Session is an automated, authenticated browsing session owned by one job
type Session interface {
	ConversationView

	// Open navigates to the conversation and waits until the input surface is ready
	Open(ctx context.Context, url string) error

	// Close releases the browser; safe to call more than once
	Close() error
}

// SessionProvider creates sessions. Each call returns an exclusively owned session.
type SessionProvider interface {
	NewSession(ctx context.Context) (Session, error)
}

// ResultSink receives extracted results
type ResultSink interface {
	Dispatch(ctx context.Context, result models.ImageResult) error
}

// JobStarter starts a job in the background and returns immediately
type JobStarter interface {
	Start()
}

package imagine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ternarybob/mjrelay/internal/interfaces"
	"github.com/ternarybob/mjrelay/internal/models"
)

var testStart = time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)

// fakeClock advances only when something sleeps
type fakeClock struct {
	mu    sync.Mutex
	t     time.Time
	slept []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: testStart}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
	c.slept = append(c.slept, d)
	return ctx.Err()
}

func (c *fakeClock) clock() clock {
	return clock{now: c.now, sleep: c.sleep}
}

func (c *fakeClock) elapsed() time.Duration {
	return c.now().Sub(testStart)
}

// timedMessage becomes visible once the clock reaches testStart+at
type timedMessage struct {
	at  time.Duration
	msg models.Message
}

// fakeView is a scripted conversation whose content depends on the fake clock
type fakeView struct {
	clock    *fakeClock
	timeline []timedMessage
	controls map[string]string              // message id -> control label
	media    map[string][]models.Attachment // message id -> rendered attachments

	listErr     error
	focusErr    error
	typeErr     error
	enterErr    error
	activateErr error

	listCalls       int
	attachmentCalls int
	focused         int
	typed           []string
	enters          int
	activated       []interfaces.Control
}

func newFakeView(clk *fakeClock, timeline ...timedMessage) *fakeView {
	return &fakeView{
		clock:    clk,
		timeline: timeline,
		controls: map[string]string{},
		media:    map[string][]models.Attachment{},
	}
}

func (v *fakeView) attach(id string, urls ...string) *fakeView {
	for _, u := range urls {
		v.media[id] = append(v.media[id], models.NewAttachment(u))
	}
	return v
}

func (v *fakeView) visible() []models.Message {
	elapsed := v.clock.elapsed()
	var messages []models.Message
	for _, tm := range v.timeline {
		if tm.at <= elapsed {
			messages = append(messages, tm.msg)
		}
	}
	return messages
}

func (v *fakeView) ListMessages(ctx context.Context) ([]models.Message, error) {
	v.listCalls++
	if v.listErr != nil {
		return nil, v.listErr
	}
	return v.visible(), nil
}

func (v *fakeView) Attachments(ctx context.Context, msg models.Message) ([]models.Attachment, error) {
	v.attachmentCalls++
	for _, m := range v.visible() {
		if m.ID == msg.ID {
			return v.media[m.ID], nil
		}
	}
	return nil, nil
}

func (v *fakeView) FindControl(ctx context.Context, msg models.Message, label string) (*interfaces.Control, error) {
	if v.controls[msg.ID] != label {
		return nil, nil
	}
	return &interfaces.Control{MessageID: msg.ID, Label: label, Selector: "button#" + msg.ID}, nil
}

func (v *fakeView) Activate(ctx context.Context, control interfaces.Control) error {
	if v.activateErr != nil {
		return v.activateErr
	}
	v.activated = append(v.activated, control)
	return nil
}

func (v *fakeView) FocusInput(ctx context.Context) error {
	v.focused++
	return v.focusErr
}

func (v *fakeView) SubmitText(ctx context.Context, text string) error {
	if v.typeErr != nil {
		return v.typeErr
	}
	v.typed = append(v.typed, text)
	return nil
}

func (v *fakeView) PressEnter(ctx context.Context) error {
	if v.enterErr != nil {
		return v.enterErr
	}
	v.enters++
	return nil
}

// fakeSession wraps a fakeView with session lifecycle tracking
type fakeSession struct {
	*fakeView
	openErr  error
	openedAt string
	closed   int
}

func (s *fakeSession) Open(ctx context.Context, url string) error {
	s.openedAt = url
	return s.openErr
}

func (s *fakeSession) Close() error {
	s.closed++
	return nil
}

type fakeProvider struct {
	session *fakeSession
	err     error
	calls   int
}

func (p *fakeProvider) NewSession(ctx context.Context) (interfaces.Session, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.session, nil
}

type fakeSink struct {
	results []models.ImageResult
	err     error
}

func (s *fakeSink) Dispatch(ctx context.Context, result models.ImageResult) error {
	s.results = append(s.results, result)
	return s.err
}

var errSurface = errors.New("surface unavailable")

func userMessage(id, prompt string) models.Message {
	return models.Message{ID: id, Text: "someone\n" + prompt, Content: prompt}
}

func botMessage(id, text string) models.Message {
	return models.Message{ID: id, Text: text, Content: text}
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.ConversationURL = "https://discord.com/channels/111/222"
	return opts
}

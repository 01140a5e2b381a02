package imagine

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/mjrelay/internal/common"
)

// Default heuristic timings. The sleeps stand in for completion signals the
// rendering surface does not expose.
const (
	DefaultPollInterval     = 5 * time.Second
	DefaultReplyTimeout     = 2 * time.Minute
	DefaultRenderWait       = 50 * time.Second
	DefaultSuggestionSettle = 3 * time.Second
	DefaultActionSettle     = 10 * time.Second
	DefaultMessageWait      = 30 * time.Second
)

// Options is the immutable configuration of a runner
type Options struct {
	ConversationURL string

	Command       string // Command token typed into the input, e.g. "/imagine"
	CommandMarker string // Marker stripped from the raw prompt, e.g. "/imagine prompt"
	AuthorMarker  string // Text identifying the worker's replies
	ActionLabel   string // Label of the control activated on the reply

	PollInterval     time.Duration
	ReplyTimeout     time.Duration
	RenderWait       time.Duration
	SuggestionSettle time.Duration
	ActionSettle     time.Duration
	MessageWait      time.Duration

	MediaHosts        []string
	ExcludedFragments []string
}

// DefaultOptions returns options matching the Midjourney bot on Discord
func DefaultOptions() Options {
	return Options{
		Command:           "/imagine",
		CommandMarker:     "/imagine prompt",
		AuthorMarker:      "Midjourney Bot",
		ActionLabel:       "U1",
		PollInterval:      DefaultPollInterval,
		ReplyTimeout:      DefaultReplyTimeout,
		RenderWait:        DefaultRenderWait,
		SuggestionSettle:  DefaultSuggestionSettle,
		ActionSettle:      DefaultActionSettle,
		MessageWait:       DefaultMessageWait,
		MediaHosts:        []string{"media.discordapp.net"},
		ExcludedFragments: []string{"avatars", "attachments"},
	}
}

// OptionsFromConfig resolves runner options from the application configuration
func OptionsFromConfig(config *common.Config) (Options, error) {
	opts := DefaultOptions()
	opts.ConversationURL = config.Discord.ChannelURL()

	if config.Imagine.Command != "" {
		opts.Command = config.Imagine.Command
	}
	if config.Imagine.CommandMarker != "" {
		opts.CommandMarker = config.Imagine.CommandMarker
	}
	if config.Imagine.AuthorMarker != "" {
		opts.AuthorMarker = config.Imagine.AuthorMarker
	}
	if config.Imagine.ActionLabel != "" {
		opts.ActionLabel = config.Imagine.ActionLabel
	}
	if len(config.Extraction.MediaHosts) > 0 {
		opts.MediaHosts = config.Extraction.MediaHosts
	}
	if config.Extraction.ExcludedFragments != nil {
		opts.ExcludedFragments = config.Extraction.ExcludedFragments
	}

	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"poll_interval", config.Imagine.PollInterval, &opts.PollInterval},
		{"reply_timeout", config.Imagine.ReplyTimeout, &opts.ReplyTimeout},
		{"render_wait", config.Imagine.RenderWait, &opts.RenderWait},
		{"suggestion_settle", config.Imagine.SuggestionSettle, &opts.SuggestionSettle},
		{"action_settle", config.Imagine.ActionSettle, &opts.ActionSettle},
		{"message_wait", config.Imagine.MessageWait, &opts.MessageWait},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return Options{}, fmt.Errorf("invalid imagine.%s %q: %w", d.name, d.value, err)
		}
		if parsed < 0 {
			return Options{}, fmt.Errorf("imagine.%s must not be negative, got %s", d.name, d.value)
		}
		*d.dst = parsed
	}

	return opts, nil
}

// clock lets tests drive the poll loop and blind sleeps without real time passing
type clock struct {
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func realClock() clock {
	return clock{now: time.Now, sleep: sleepContext}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

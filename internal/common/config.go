package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string           `toml:"environment"` // "development" or "production"
	Server      ServerConfig     `toml:"server"`
	Logging     LoggingConfig    `toml:"logging"`
	Discord     DiscordConfig    `toml:"discord"`
	Browser     BrowserConfig    `toml:"browser"`
	Imagine     ImagineConfig    `toml:"imagine"`
	Extraction  ExtractionConfig `toml:"extraction"`
	Sink        SinkConfig       `toml:"sink"`
	Trigger     TriggerConfig    `toml:"trigger"`
	Scheduler   SchedulerConfig  `toml:"scheduler"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"min=1,max=65535"`
	Host string `toml:"host"`
}

type LoggingConfig struct {
	Level  string   `toml:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Output []string `toml:"output"` // "stdout", "file"
}

// DiscordConfig holds the session credential and the conversation coordinates
type DiscordConfig struct {
	Token     string `toml:"token" validate:"required"`
	ServerID  string `toml:"server_id" validate:"required"`
	ChannelID string `toml:"channel_id" validate:"required"`
	Host      string `toml:"host" validate:"required,hostname"`
}

// ChannelURL returns https://<host>/channels/<server>/<channel>
func (d DiscordConfig) ChannelURL() string {
	return fmt.Sprintf("https://%s/channels/%s/%s", d.Host, d.ServerID, d.ChannelID)
}

// BrowserConfig controls the headless Chrome used for each job
type BrowserConfig struct {
	Headless          bool   `toml:"headless"`
	NoSandbox         bool   `toml:"no_sandbox"`
	DisableGPU        bool   `toml:"disable_gpu"`
	UserAgent         string `toml:"user_agent"`
	NavigationTimeout string `toml:"navigation_timeout"` // e.g. "60s"
	ReadySelector     string `toml:"ready_selector"`
	InputSelector     string `toml:"input_selector"`
	MessageSelector   string `toml:"message_selector"`
	MarkupSelector    string `toml:"markup_selector"`
}

// ImagineConfig holds detection criteria and the heuristic timings
type ImagineConfig struct {
	Command          string `toml:"command"`
	CommandMarker    string `toml:"command_marker"`
	AuthorMarker     string `toml:"author_marker"`
	ActionLabel      string `toml:"action_label"`
	PollInterval     string `toml:"poll_interval"`     // Delay between reply scans
	ReplyTimeout     string `toml:"reply_timeout"`     // Deadline for the first reply
	RenderWait       string `toml:"render_wait"`       // Blind wait for the image render
	SuggestionSettle string `toml:"suggestion_settle"` // Wait for the command suggestion popup
	ActionSettle     string `toml:"action_settle"`     // Wait after activating the control
	MessageWait      string `toml:"message_wait"`      // Wait for the first message to render
}

type ExtractionConfig struct {
	MediaHosts        []string `toml:"media_hosts"`
	ExcludedFragments []string `toml:"excluded_fragments"`
}

// SinkConfig is the downstream collector webhook
type SinkConfig struct {
	URL     string `toml:"url" validate:"required,url"`
	Timeout string `toml:"timeout"`
}

// TriggerConfig throttles the trigger endpoint. RateLimit 0 disables throttling.
type TriggerConfig struct {
	RateLimit string `toml:"rate_limit"` // Minimum interval between accepted triggers, e.g. "30s"
	Burst     int    `toml:"burst" validate:"min=0"`
}

// SchedulerConfig optionally triggers jobs on a cron schedule
type SchedulerConfig struct {
	Schedule string `toml:"schedule"` // Standard 5-field cron, empty = disabled
}

// NewDefaultConfig returns the configuration used before files and environment are applied
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 3000,
			Host: "0.0.0.0",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
		Discord: DiscordConfig{
			Host: "discord.com",
		},
		Browser: BrowserConfig{
			Headless:          true,
			NoSandbox:         true,
			DisableGPU:        true,
			NavigationTimeout: "60s",
		},
		Imagine: ImagineConfig{
			Command:          "/imagine",
			CommandMarker:    "/imagine prompt",
			AuthorMarker:     "Midjourney Bot",
			ActionLabel:      "U1",
			PollInterval:     "5s",
			ReplyTimeout:     "2m",
			RenderWait:       "50s",
			SuggestionSettle: "3s",
			ActionSettle:     "10s",
			MessageWait:      "30s",
		},
		Extraction: ExtractionConfig{
			MediaHosts:        []string{"media.discordapp.net"},
			ExcludedFragments: []string{"avatars", "attachments"},
		},
		Sink: SinkConfig{
			Timeout: "30s",
		},
		Trigger: TriggerConfig{
			Burst: 1,
		},
	}
}

// LoadFromFiles loads defaults, merges each file in order, then applies .env
// and environment overrides. Later sources override earlier ones.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	// .env is optional; real environment variables take precedence over it
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	applyEnvOverrides(config)

	return config, nil
}

func applyEnvOverrides(config *Config) {
	if env := os.Getenv("MJRELAY_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration (PORT kept for hosting platforms)
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if port := os.Getenv("MJRELAY_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("MJRELAY_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Logging configuration
	if level := os.Getenv("MJRELAY_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("MJRELAY_LOG_OUTPUT"); output != "" {
		if outputs := splitList(output); len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Session credential and conversation coordinates
	if token := os.Getenv("DISCORD_TOKEN"); token != "" {
		config.Discord.Token = token
	}
	if serverID := os.Getenv("DISCORD_SERVER_ID"); serverID != "" {
		config.Discord.ServerID = serverID
	}
	if channelID := os.Getenv("DISCORD_CHANNEL_ID"); channelID != "" {
		config.Discord.ChannelID = channelID
	}

	// Sink configuration
	if sinkURL := os.Getenv("MAKE_WEBHOOK_URL"); sinkURL != "" {
		config.Sink.URL = sinkURL
	}
	if sinkURL := os.Getenv("MJRELAY_SINK_URL"); sinkURL != "" {
		config.Sink.URL = sinkURL
	}

	// Browser configuration
	if headless := os.Getenv("MJRELAY_BROWSER_HEADLESS"); headless != "" {
		if h, err := strconv.ParseBool(headless); err == nil {
			config.Browser.Headless = h
		}
	}
	if userAgent := os.Getenv("MJRELAY_BROWSER_USER_AGENT"); userAgent != "" {
		config.Browser.UserAgent = userAgent
	}

	// Timings
	if replyTimeout := os.Getenv("MJRELAY_REPLY_TIMEOUT"); replyTimeout != "" {
		config.Imagine.ReplyTimeout = replyTimeout
	}
	if renderWait := os.Getenv("MJRELAY_RENDER_WAIT"); renderWait != "" {
		config.Imagine.RenderWait = renderWait
	}

	if schedule := os.Getenv("MJRELAY_SCHEDULE"); schedule != "" {
		config.Scheduler.Schedule = schedule
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks required values, duration strings and the optional schedule
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	durations := map[string]string{
		"browser.navigation_timeout": c.Browser.NavigationTimeout,
		"imagine.poll_interval":      c.Imagine.PollInterval,
		"imagine.reply_timeout":      c.Imagine.ReplyTimeout,
		"imagine.render_wait":        c.Imagine.RenderWait,
		"imagine.suggestion_settle":  c.Imagine.SuggestionSettle,
		"imagine.action_settle":      c.Imagine.ActionSettle,
		"imagine.message_wait":       c.Imagine.MessageWait,
		"sink.timeout":               c.Sink.Timeout,
		"trigger.rate_limit":         c.Trigger.RateLimit,
	}
	for name, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s: %w", name, err)
		}
	}

	if c.Scheduler.Schedule != "" {
		if err := ValidateJobSchedule(c.Scheduler.Schedule); err != nil {
			return fmt.Errorf("invalid scheduler.schedule: %w", err)
		}
	}

	return nil
}

// MinScheduleInterval is the shortest gap allowed between two scheduled runs
const MinScheduleInterval = 5 * time.Minute

// scheduleSamples is how many upcoming activations ValidateJobSchedule inspects
const scheduleSamples = 500

var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateJobSchedule validates a cron expression or descriptor and ensures
// no two upcoming runs are closer than MinScheduleInterval. "@every" is held
// to the same minimum as field expressions.
func ValidateJobSchedule(schedule string) error {
	if every, ok := strings.CutPrefix(schedule, "@every "); ok {
		d, err := time.ParseDuration(strings.TrimSpace(every))
		if err != nil {
			return fmt.Errorf("invalid @every interval %q: %w", every, err)
		}
		if d < MinScheduleInterval {
			return fmt.Errorf("schedule interval must be at least %s, got %s", MinScheduleInterval, d)
		}
		return nil
	}

	sched, err := scheduleParser.Parse(schedule)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	// Walk upcoming activations from a fixed instant so the result does not
	// depend on when the process starts
	prev := sched.Next(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	for i := 0; i < scheduleSamples && !prev.IsZero(); i++ {
		next := sched.Next(prev)
		if next.IsZero() {
			break
		}
		if gap := next.Sub(prev); gap < MinScheduleInterval {
			return fmt.Errorf("schedule interval must be at least %s, got %s between %s and %s",
				MinScheduleInterval, gap, prev.Format("15:04"), next.Format("15:04"))
		}
		prev = next
	}

	return nil
}

// ParseDurationOr parses value, returning fallback when it is empty or invalid
func ParseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// splitList splits a comma-separated value and drops empty items
func splitList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

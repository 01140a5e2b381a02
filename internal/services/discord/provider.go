// -----------------------------------------------------------------------
// Discord session provider - one headless Chrome per job via chromedp
// -----------------------------------------------------------------------

package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mjrelay/internal/common"
	"github.com/ternarybob/mjrelay/internal/interfaces"
)

// Selectors locate the pieces of the Discord web client
type Selectors struct {
	Ready   string // Element that appears once the client is authenticated and loaded
	Input   string // Chat input
	Message string // Rendered chat messages
	Markup  string // Body text inside a message
}

// DefaultSelectors match the Discord web client
func DefaultSelectors() Selectors {
	return Selectors{
		Ready:   `[role="textbox"][aria-label="Message"]`,
		Input:   `[role="textbox"]`,
		Message: `[data-list-item-id^="chat-messages"]`,
		Markup:  `[class*="markup"]`,
	}
}

// ProviderConfig configures browser sessions
type ProviderConfig struct {
	Token             string
	Headless          bool
	NoSandbox         bool
	DisableGPU        bool
	UserAgent         string
	NavigationTimeout time.Duration
	Selectors         Selectors
}

// ProviderConfigFromCommon builds a provider configuration from application config
func ProviderConfigFromCommon(config *common.Config) ProviderConfig {
	selectors := DefaultSelectors()
	if config.Browser.ReadySelector != "" {
		selectors.Ready = config.Browser.ReadySelector
	}
	if config.Browser.InputSelector != "" {
		selectors.Input = config.Browser.InputSelector
	}
	if config.Browser.MessageSelector != "" {
		selectors.Message = config.Browser.MessageSelector
	}
	if config.Browser.MarkupSelector != "" {
		selectors.Markup = config.Browser.MarkupSelector
	}

	return ProviderConfig{
		Token:             config.Discord.Token,
		Headless:          config.Browser.Headless,
		NoSandbox:         config.Browser.NoSandbox,
		DisableGPU:        config.Browser.DisableGPU,
		UserAgent:         config.Browser.UserAgent,
		NavigationTimeout: common.ParseDurationOr(config.Browser.NavigationTimeout, 60*time.Second),
		Selectors:         selectors,
	}
}

// Provider launches an authenticated browser session per call
type Provider struct {
	config ProviderConfig
	logger arbor.ILogger
}

// NewProvider creates a session provider
func NewProvider(config ProviderConfig, logger arbor.ILogger) *Provider {
	if config.NavigationTimeout <= 0 {
		config.NavigationTimeout = 60 * time.Second
	}
	return &Provider{config: config, logger: logger}
}

// NewSession launches a browser and injects the session token so that the
// client starts authenticated. The browser dies with ctx.
func (p *Provider) NewSession(ctx context.Context) (interfaces.Session, error) {
	script, err := tokenInitScript(p.config.Token)
	if err != nil {
		return nil, err
	}

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(ctx, p.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx,
		chromedp.WithLogf(func(s string, i ...interface{}) {
			p.logger.Trace().Msgf("chromedp: "+s, i...)
		}),
	)
	cancel := func() {
		browserCancel()
		allocatorCancel()
	}

	p.logger.Debug().Bool("headless", p.config.Headless).Msg("Launching browser")

	// First Run allocates the browser, so it must not use a timeout context
	if err := chromedp.Run(browserCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
			return err
		}),
	); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to inject session token: %w", err)
	}
	p.logger.Debug().Msg("Session token injected into local storage")

	return newSession(browserCtx, cancel, p.config, p.logger), nil
}

func (p *Provider) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", p.config.Headless),
		chromedp.Flag("disable-gpu", p.config.DisableGPU),
		chromedp.Flag("no-sandbox", p.config.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1920, 1080),
	)
	if p.config.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(p.config.UserAgent))
	}
	return opts
}

// tokenInitScript returns a script storing token the way the Discord client
// keeps it: a JSON encoded string under localStorage.token
func tokenInitScript(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("session token is empty")
	}
	stored, err := json.Marshal(token)
	if err != nil {
		return "", fmt.Errorf("failed to encode token: %w", err)
	}
	literal, err := json.Marshal(string(stored))
	if err != nil {
		return "", fmt.Errorf("failed to encode token literal: %w", err)
	}
	return fmt.Sprintf("window.localStorage.setItem('token', %s);", literal), nil
}

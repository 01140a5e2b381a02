package common

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner and the resolved target
func PrintBanner(config *Config, logger arbor.ILogger) {
	banner.PrintSimple("mjrelay", GetVersion())

	logger.Info().
		Str("version", GetFullVersion()).
		Str("environment", config.Environment).
		Str("conversation", config.Discord.ChannelURL()).
		Str("sink", config.Sink.URL).
		Msg("mjrelay starting")
}

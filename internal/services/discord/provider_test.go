package discord

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mjrelay/internal/common"
)

func TestTokenInitScript(t *testing.T) {
	script, err := tokenInitScript(`abc.def"ghi`)
	require.NoError(t, err)

	prefix := "window.localStorage.setItem('token', "
	require.True(t, strings.HasPrefix(script, prefix))
	literal := strings.TrimSuffix(strings.TrimPrefix(script, prefix), ");")

	// The stored value is itself a JSON string
	var stored string
	require.NoError(t, json.Unmarshal([]byte(literal), &stored))
	var token string
	require.NoError(t, json.Unmarshal([]byte(stored), &token))
	assert.Equal(t, `abc.def"ghi`, token)
}

func TestTokenInitScript_EmptyToken(t *testing.T) {
	_, err := tokenInitScript("")
	assert.Error(t, err)
}

func TestProviderConfigFromCommon(t *testing.T) {
	config := common.NewDefaultConfig()
	config.Discord.Token = "secret"
	config.Browser.Headless = false
	config.Browser.UserAgent = "relay-test"
	config.Browser.NavigationTimeout = "bogus"
	config.Browser.MarkupSelector = ".body"

	pc := ProviderConfigFromCommon(config)
	assert.Equal(t, "secret", pc.Token)
	assert.False(t, pc.Headless)
	assert.True(t, pc.NoSandbox)
	assert.Equal(t, "relay-test", pc.UserAgent)
	assert.Equal(t, 60*time.Second, pc.NavigationTimeout, "invalid value falls back")
	assert.Equal(t, ".body", pc.Selectors.Markup)
	assert.Equal(t, DefaultSelectors().Message, pc.Selectors.Message)
}

func TestProvider_AllocatorOptions(t *testing.T) {
	p := NewProvider(ProviderConfig{Headless: true}, arbor.NewLogger())
	base := len(p.allocatorOptions())

	p = NewProvider(ProviderConfig{Headless: true, UserAgent: "relay-test"}, arbor.NewLogger())
	assert.Equal(t, base+1, len(p.allocatorOptions()))
	assert.Equal(t, 60*time.Second, p.config.NavigationTimeout)
}

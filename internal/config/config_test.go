// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "pilot", cfg.Logger.ServiceName)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 900, cfg.Browser.Viewport.Width)
	assert.Equal(t, 600, cfg.Browser.Viewport.Height)
	assert.Equal(t, 300*time.Millisecond, cfg.Browser.ScrollIntoViewDelay)
	assert.Equal(t, 2*time.Second, cfg.Desktop.ClickSettleDelay)
	assert.Equal(t, 500*time.Millisecond, cfg.Desktop.InputSettleDelay)
	assert.Equal(t, 2, cfg.Desktop.ScrollClicks)
	assert.Equal(t, 2*time.Second, cfg.Desktop.URLCacheTTL)
	assert.Equal(t, 500*time.Millisecond, cfg.Loading.PollInterval)
	assert.Equal(t, DefaultLoadingSelectors, cfg.Loading.Selectors)
	assert.Equal(t, 3, cfg.Stability.StableSamples)
	assert.NoError(t, cfg.Validate(), "defaults must validate")
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Core Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()
		require.NoError(t, cfg.Validate())

		badViewport := *cfg
		badViewport.Browser.Viewport.Width = 0
		err := badViewport.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "browser.viewport width and height must be positive integers")

		badSamples := *cfg
		badSamples.Stability.StableSamples = 1
		err = badSamples.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "stability.stable_samples must be at least 2")

		badPoll := *cfg
		badPoll.Loading.PollInterval = 0
		assert.Error(t, badPoll.Validate())

		badOmni := *cfg
		badOmni.OmniParser.Enabled = true
		err = badOmni.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "omniparser.endpoint is required")
	})

	t.Run("Desktop Validation", func(t *testing.T) {
		valid := DesktopConfig{Enabled: true, Container: "desktop-1", ScrollClicks: 2, TargetProcess: "firefox"}
		assert.NoError(t, valid.Validate())

		disabled := DesktopConfig{}
		assert.NoError(t, disabled.Validate(), "disabled desktop config should always be valid")

		missingContainer := valid
		missingContainer.Container = ""
		err := missingContainer.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "desktop.container is required")

		noScroll := valid
		noScroll.ScrollClicks = 0
		assert.Error(t, noScroll.Validate())

		noProcess := valid
		noProcess.TargetProcess = ""
		assert.Error(t, noProcess.Validate())
	})
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		yamlBytes := []byte(`
browser:
  viewport:
    width: 1280
    height: 720
  remote_url: "ws://chrome:9222/devtools/browser/abc"
desktop:
  enabled: true
  container: "desktop-7"
  click_settle_delay: 1500ms
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, 1280, cfg.Browser.Viewport.Width)
		assert.Equal(t, "ws://chrome:9222/devtools/browser/abc", cfg.Browser.RemoteURL)
		assert.Equal(t, "desktop-7", cfg.Desktop.Container)
		assert.Equal(t, 1500*time.Millisecond, cfg.Desktop.ClickSettleDelay)
		// Defaults survive alongside file values.
		assert.Equal(t, 500*time.Millisecond, cfg.Desktop.InputSettleDelay)
		assert.Equal(t, "info", cfg.Logger.Level)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("stability.stable_samples", 0)

		cfg, err := NewConfigFromViper(v)
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid configuration")
	})

	t.Run("Environment Variable Binding", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("desktop.enabled", true)

		yamlConfig := []byte(`
desktop:
  container: "from-file"
`)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlConfig)))

		t.Setenv("PILOT_DESKTOP_CONTAINER", "from-env")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "from-env", cfg.Desktop.Container, "env must override the config file")
	})
}

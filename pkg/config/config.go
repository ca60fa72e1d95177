// Package config loads and persists accfleet settings as a JSON file,
// defaulting to ~/.accfleet/config.json.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Settings holds every tunable of the daemon and the browser core.
type Settings struct {
	// ListenAddr is the API facade bind address.
	ListenAddr string `json:"listenAddr"`

	// SiteURL is the target site's landing page.
	SiteURL string `json:"siteUrl"`

	// ProfilePath is appended to SiteURL for the status probe.
	ProfilePath string `json:"profilePath"`

	UserAgent      string `json:"userAgent"`
	ViewportWidth  int    `json:"viewportWidth"`
	ViewportHeight int    `json:"viewportHeight"`

	// MaxSessions caps concurrent sessions; 0 means unlimited.
	MaxSessions int `json:"maxSessions"`

	NavTimeoutMS    int `json:"navTimeoutMs"`
	SelectorWaitMS  int `json:"selectorWaitMs"`
	SettleWaitMS    int `json:"settleWaitMs"`
	SubmitWaitMS    int `json:"submitWaitMs"`
	TeardownGraceMS int `json:"teardownGraceMs"`

	// ProxyProbeURL is fetched through proxies under test.
	ProxyProbeURL string `json:"proxyProbeUrl"`
	// ProxyProbeTimeoutMS bounds one proxy liveness check.
	ProxyProbeTimeoutMS int `json:"proxyProbeTimeoutMs"`
}

// Default returns the settings used when no config file exists.
func Default() Settings {
	return Settings{
		ListenAddr:          "127.0.0.1:8750",
		SiteURL:             "https://www.facebook.com",
		ProfilePath:         "/me",
		ViewportWidth:       1920,
		ViewportHeight:      1080,
		NavTimeoutMS:        30000,
		SelectorWaitMS:      10000,
		SettleWaitMS:        2000,
		SubmitWaitMS:        3000,
		TeardownGraceMS:     10000,
		ProxyProbeURL:       "https://www.google.com/generate_204",
		ProxyProbeTimeoutMS: 10000,
	}
}

// DefaultPath returns ~/.accfleet/config.json.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".accfleet", "config.json"), nil
}

// Load reads settings from path. A missing file yields the defaults; a
// present file is merged over them, so partial configs are valid.
func Load(path string) (Settings, error) {
	settings := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return settings, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &settings); err != nil {
		return Default(), fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return settings, nil
}

// Save writes settings to path, creating parent directories as needed.
func (s Settings) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}

// Durations derived from the millisecond fields.

func (s Settings) NavTimeout() time.Duration      { return ms(s.NavTimeoutMS) }
func (s Settings) SelectorWait() time.Duration    { return ms(s.SelectorWaitMS) }
func (s Settings) SettleWait() time.Duration      { return ms(s.SettleWaitMS) }
func (s Settings) SubmitWait() time.Duration      { return ms(s.SubmitWaitMS) }
func (s Settings) TeardownGrace() time.Duration   { return ms(s.TeardownGraceMS) }
func (s Settings) ProxyProbeTimeout() time.Duration { return ms(s.ProxyProbeTimeoutMS) }

// ProfileURL joins the site URL and the profile path.
func (s Settings) ProfileURL() string { return s.SiteURL + s.ProfilePath }

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

package main

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rs/zerolog"
)

const chromeUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// Browser owns the launched Chrome instance and hands out stealth pages.
// One instance serves the whole batch; accounts take turns on a single page.
type Browser struct {
	config   *Config
	browser  *rod.Browser
	launcher *launcher.Launcher
	log      zerolog.Logger
}

func NewBrowser(config *Config, log zerolog.Logger) *Browser {
	return &Browser{
		config: config,
		log:    log.With().Str("component", "browser").Logger(),
	}
}

func (b *Browser) Start(profileDir string) error {
	b.log.Info().Str("profile", profileDir).Msg("launching browser")

	// Disable leakless mode on Windows to prevent deadlock
	// See: https://github.com/go-rod/rod/issues/853
	useLeakless := runtime.GOOS != "windows"

	b.launcher = launcher.New().
		Leakless(useLeakless).
		Headless(b.config.Headless)

	if profileDir != "" {
		b.launcher = b.launcher.UserDataDir(profileDir)
	}

	// Prefer system Chrome, fall back to the automatic Chromium download.
	if chromePath, ok := launcher.LookPath(); ok {
		b.launcher = b.launcher.Bin(chromePath)
		b.log.Debug().Str("bin", chromePath).Msg("using system chrome")
	}

	url, err := b.launcher.Launch()
	if err != nil {
		if strings.Contains(err.Error(), "ProcessSingleton") ||
			strings.Contains(err.Error(), "SingletonLock") {
			return fmt.Errorf("chrome is already running with this profile, close it first: %w", err)
		}
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("failed to connect to browser: %w", err)
	}
	b.browser = browser

	b.log.Info().Msg("browser launched")
	return nil
}

// NewStealthPage creates a page with the anti-detection patches applied and a
// desktop Chrome user agent. Plain pages trip the storefront's bot checks.
func (b *Browser) NewStealthPage() (*rod.Page, error) {
	page, err := stealth.Page(b.browser)
	if err != nil {
		return nil, fmt.Errorf("failed to create stealth page: %w", err)
	}

	err = page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent: chromeUserAgent,
	})
	if err != nil {
		b.log.Warn().Err(err).Msg("failed to set user agent")
	}

	return page, nil
}

func (b *Browser) Alive() bool {
	if b.browser == nil {
		return false
	}
	_, err := b.browser.Version()
	return err == nil
}

func (b *Browser) Close() {
	if b.browser != nil {
		b.browser.Close()
	}
	if b.launcher != nil {
		b.launcher.Cleanup()
	}
	b.log.Info().Msg("browser destroyed")
}

// waitForURLPrefix polls the page until its URL starts with prefix or the
// timeout elapses. Redirect-based flows use this as their proof of arrival.
func waitForURLPrefix(page *rod.Page, prefix string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		info, err := page.Info()
		if err == nil && strings.HasPrefix(info.URL, prefix) {
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("timed out waiting for navigation to %s", prefix)
}

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"
)

const (
	urlClaim       = "https://store.epicgames.com/en-US/free-games"
	urlCart        = "https://store.epicgames.com/en-US/cart"
	urlCartSuccess = "https://store.epicgames.com/en-US/cart/success"
	urlAccount     = "https://www.epicgames.com/account/personal?lang=en-US&productName=egs&sessionInvalidated=true"
	urlAccountHome = "https://www.epicgames.com/account/personal"
)

// errAuthExhausted ends one account's pipeline; the batch keeps going.
var errAuthExhausted = errors.New("authorization retries exhausted")

// Session binds the shared browser page to exactly one account. A fresh value
// is built for every account so no credentials survive an account switch.
type Session struct {
	page    *rod.Page
	account Account
	solver  ChallengeSolver
	config  *Config
	log     zerolog.Logger
}

func NewSession(page *rod.Page, account Account, solver ChallengeSolver, config *Config, log zerolog.Logger) *Session {
	return &Session{
		page:    page,
		account: account,
		solver:  solver,
		config:  config,
		log:     log.With().Str("component", "session").Str("account", account.Email).Logger(),
	}
}

func (s *Session) pageTimeout() time.Duration {
	return time.Duration(s.config.PageLoadTimeout) * time.Second
}

// Authorize establishes a logged-in session for the bound account. If the
// page already reports a login it checks the displayed identity first: a
// match returns immediately, anything else forces a best-effort logout and a
// full re-login.
func (s *Session) Authorize() error {
	s.log.Info().Msg("checking authorization status")

	if err := s.page.Navigate(urlClaim); err != nil {
		return fmt.Errorf("failed to open claim page: %w", err)
	}
	if err := s.page.Timeout(s.pageTimeout()).WaitLoad(); err != nil {
		s.log.Warn().Err(err).Msg("claim page load timed out")
	}

	if s.isLoggedIn() {
		label, err := s.activeAccountLabel()
		if err == nil && identityMatches(label, s.account.Email) {
			s.log.Info().Msg("already logged in with the correct account")
			return nil
		}
		if err != nil {
			s.log.Warn().Err(err).Msg("could not read active account, assuming wrong login")
		} else {
			s.log.Warn().Msg("logged in with a different account")
		}
		if err := s.logout(); err != nil {
			// Logout is best-effort; the fresh login clears state anyway.
			s.log.Warn().Err(err).Msg("logout failed")
		}
	}

	err := retryBounded(s.config.LoginRetries, s.loginOnce, func() {
		if err := s.page.Reload(); err != nil {
			s.log.Warn().Err(err).Msg("reload between login attempts failed")
		}
	})
	if err != nil {
		s.log.Error().Int("attempts", s.config.LoginRetries).Msg("authorization failed")
		return fmt.Errorf("login failed after %d attempts: %w", s.config.LoginRetries, errAuthExhausted)
	}

	s.log.Info().Msg("authorization successful")
	return nil
}

func (s *Session) isLoggedIn() bool {
	nav, err := s.page.Timeout(5 * time.Second).ElementX(s.config.Selectors.NavRoot)
	if err != nil {
		return false
	}
	attr, err := nav.Attribute("isloggedin")
	return err == nil && attr != nil && *attr == "true"
}

func (s *Session) activeAccountLabel() (string, error) {
	btn, err := s.page.Timeout(5 * time.Second).ElementX(s.config.Selectors.AccountMenuButton)
	if err != nil {
		return "", fmt.Errorf("account menu button not found: %w", err)
	}
	attr, err := btn.Attribute("aria-label")
	if err != nil || attr == nil {
		return "", fmt.Errorf("account menu has no readable label")
	}
	return *attr, nil
}

// logout signs out whoever is currently logged in. No-op when the page
// already reports a logged-out state.
func (s *Session) logout() error {
	s.log.Info().Msg("logging out current account")

	if err := s.page.Navigate(urlAccountHome); err != nil {
		return fmt.Errorf("failed to open account page: %w", err)
	}
	if err := s.page.Timeout(s.pageTimeout()).WaitLoad(); err != nil {
		return fmt.Errorf("account page load failed: %w", err)
	}

	if !s.isLoggedIn() {
		s.log.Debug().Msg("already logged out")
		return nil
	}

	menu, err := s.page.Timeout(s.pageTimeout()).ElementX(s.config.Selectors.AccountMenuButton)
	if err != nil {
		return fmt.Errorf("account menu not found: %w", err)
	}
	if err := menu.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("failed to open account menu: %w", err)
	}

	link, err := s.page.Timeout(s.pageTimeout()).ElementX(s.config.Selectors.LogoutLink)
	if err != nil {
		return fmt.Errorf("logout link not found: %w", err)
	}
	if err := link.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("failed to click logout: %w", err)
	}

	if err := s.page.Timeout(s.pageTimeout()).WaitIdle(s.pageTimeout()); err != nil {
		s.log.Warn().Err(err).Msg("network did not settle after logout")
	}

	s.log.Debug().Msg("logged out")
	return nil
}

// loginOnce is a single full authorization attempt: wipe session state, open
// the identity provider, enter credentials with human pacing, submit, hand
// the page to the challenge delegate, and wait for the redirect back.
func (s *Session) loginOnce() error {
	if err := s.ClearState(); err != nil {
		s.log.Warn().Err(err).Msg("failed to clear session state")
	}

	if err := s.page.Navigate(urlAccount); err != nil {
		return fmt.Errorf("failed to open login page: %w", err)
	}
	if err := s.page.Timeout(s.pageTimeout()).WaitIdle(s.pageTimeout()); err != nil {
		s.log.Debug().Err(err).Msg("login page did not reach network idle")
	}
	time.Sleep(3 * time.Second)

	s.log.Info().Msg("entering credentials")
	if err := s.typePaced(s.config.Selectors.EmailInput, s.account.Email); err != nil {
		return fmt.Errorf("failed to enter email: %w", err)
	}
	time.Sleep(1 * time.Second)
	if err := s.typePaced(s.config.Selectors.PasswordInput, s.account.Password); err != nil {
		return fmt.Errorf("failed to enter password: %w", err)
	}
	time.Sleep(1 * time.Second)

	signIn, err := s.page.Timeout(s.pageTimeout()).Element(s.config.Selectors.SignInButton)
	if err != nil {
		return fmt.Errorf("sign-in button not found: %w", err)
	}
	if err := signIn.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("failed to submit login: %w", err)
	}
	time.Sleep(5 * time.Second)

	if err := s.solver.Resolve(s.page); err != nil {
		return fmt.Errorf("login challenge unresolved: %w", err)
	}

	if err := waitForURLPrefix(s.page, urlAccount, s.pageTimeout()); err != nil {
		return fmt.Errorf("no redirect after login: %w", err)
	}
	return nil
}

// typePaced enters text one keystroke at a time. Instant programmatic fill
// is a known bot signal on this login form.
func (s *Session) typePaced(selector, text string) error {
	el, err := s.page.Timeout(s.pageTimeout()).Element(selector)
	if err != nil {
		return fmt.Errorf("input %s not found: %w", selector, err)
	}
	delay := time.Duration(s.config.TypeDelayMs) * time.Millisecond
	for _, r := range text {
		if err := el.Input(string(r)); err != nil {
			return fmt.Errorf("failed to type into %s: %w", selector, err)
		}
		time.Sleep(delay)
	}
	return nil
}

// ClearState wipes cookies, cache, and granted permissions so nothing from a
// previous account bleeds into this one.
func (s *Session) ClearState() error {
	if err := (proto.NetworkClearBrowserCookies{}).Call(s.page); err != nil {
		return fmt.Errorf("failed to clear cookies: %w", err)
	}
	if err := (proto.NetworkClearBrowserCache{}).Call(s.page); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	if err := (proto.BrowserResetPermissions{}).Call(s.page); err != nil {
		s.log.Debug().Err(err).Msg("failed to reset permissions")
	}
	return nil
}

// identityMatches reports whether the displayed account label belongs to the
// configured email. The label usually embeds the email among other text.
func identityMatches(label, email string) bool {
	if strings.TrimSpace(label) == "" || strings.TrimSpace(email) == "" {
		return false
	}
	return strings.Contains(strings.ToLower(label), strings.ToLower(email))
}

// retryBounded runs step up to attempts times, calling between before every
// retry. It returns nil on the first success, otherwise the last error.
func retryBounded(attempts int, step func() error, between func()) error {
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 && between != nil {
			between()
		}
		if err = step(); err == nil {
			return nil
		}
	}
	if err == nil {
		err = fmt.Errorf("no attempts configured")
	}
	return err
}

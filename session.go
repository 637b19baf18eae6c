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
	"go.uber.org/zap"
)

const loginMarkerWait = 5 * time.Second

// Session owns one authenticated browser session. It is created per
// operation and torn down on every exit path.
type Session struct {
	config   *Config
	store    Store
	log      *zap.SugaredLogger
	browser  *rod.Browser
	launcher *launcher.Launcher
	page     *rod.Page
}

func NewSession(config *Config, store Store, log *zap.SugaredLogger) *Session {
	return &Session{
		config: config,
		store:  store,
		log:    log,
	}
}

// Page exposes the authenticated page to the booking pipeline. Only
// valid after Establish succeeds.
func (s *Session) Page() *rod.Page { return s.page }

func (s *Session) Close() {
	if s.page != nil {
		s.page.Close()
	}
	if s.browser != nil {
		s.browser.Close()
	}
	if s.launcher != nil {
		s.launcher.Cleanup()
	}
}

// Establish produces a logged-in page. It prefers restored session
// artifacts and falls back to credential sign-in, persisting fresh
// artifacts on success. Failures are surfaced once, not retried; the
// caller decides whether to rerun the whole operation.
func (s *Session) Establish() error {
	if err := s.startBrowser(); err != nil {
		return fmt.Errorf("%w: %v", ErrAuth, err)
	}

	page, err := stealth.Page(s.browser)
	if err != nil {
		return fmt.Errorf("%w: failed to create page: %v", ErrAuth, err)
	}
	s.page = page

	if s.restoreArtifacts() && s.loggedIn() {
		s.log.Infow("session restored from saved artifacts", "user", s.config.Username)
		return nil
	}

	s.log.Infow("saved session unusable, signing in with credentials", "user", s.config.Username)
	if err := s.credentialLogin(); err != nil {
		return err
	}

	if err := s.persistArtifacts(); err != nil {
		// A failed save only costs the next run its fast path.
		s.log.Warnw("failed to persist session artifacts", "error", err)
	}
	return nil
}

func (s *Session) startBrowser() error {
	// Leakless deadlocks on Windows, see go-rod/rod#853.
	useLeakless := runtime.GOOS != "windows"

	s.launcher = launcher.New().
		Leakless(useLeakless).
		Headless(s.config.Headless)

	if s.config.BrowserProfilePath != "" {
		s.launcher = s.launcher.UserDataDir(s.config.BrowserProfilePath)
	}

	if chromePath, ok := launcher.LookPath(); ok {
		s.launcher = s.launcher.Bin(chromePath)
		s.log.Debugw("using system chrome", "path", chromePath)
	}

	url, err := s.launcher.Launch()
	if err != nil {
		if strings.Contains(err.Error(), "SingletonLock") ||
			strings.Contains(err.Error(), "ProcessSingleton") {
			return fmt.Errorf("browser profile is locked by a running Chrome, close it and retry: %w", err)
		}
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	s.browser = rod.New().ControlURL(url)
	if err := s.browser.Connect(); err != nil {
		return fmt.Errorf("failed to connect to browser: %w", err)
	}

	s.log.Debugw("browser launched", "headless", s.config.Headless)
	return nil
}

func (s *Session) navigatePortal() error {
	if err := s.page.Navigate(s.config.Selectors.PortalURL); err != nil {
		return fmt.Errorf("failed to navigate to portal: %w", err)
	}
	return s.waitReady()
}

func (s *Session) waitReady() error {
	p := s.page.Timeout(s.config.pageTimeout())
	defer p.CancelTimeout()

	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("page failed to load: %w", err)
	}
	// The grid is rendered client-side after load; give the DOM a beat
	// to settle before querying it.
	p.WaitStable(300 * time.Millisecond)
	return nil
}

// restoreArtifacts applies saved cookies and localStorage to the fresh
// page. Any failure just means the fast path is unavailable.
func (s *Session) restoreArtifacts() bool {
	artifacts, err := s.store.Load()
	if err != nil {
		s.log.Debugw("session artifacts unreadable", "error", err)
		return false
	}
	if artifacts == nil || len(artifacts.Cookies) == 0 {
		return false
	}

	if err := s.page.SetCookies(cookieParams(artifacts.Cookies)); err != nil {
		s.log.Debugw("failed to apply saved cookies", "error", err)
		return false
	}

	if err := s.navigatePortal(); err != nil {
		s.log.Debugw("portal unreachable on fast path", "error", err)
		return false
	}

	if len(artifacts.Storage) > 0 {
		_, err := s.page.Eval(`(data) => {
			for (const [key, value] of Object.entries(data)) {
				localStorage.setItem(key, value);
			}
		}`, artifacts.Storage)
		if err != nil {
			s.log.Debugw("failed to restore localStorage", "error", err)
		}
	}

	return true
}

// loggedIn checks the login-confirmed marker within a short bounded
// wait. The campus button only exists behind authentication.
func (s *Session) loggedIn() bool {
	sel := s.config.Selectors

	p := s.page.Timeout(loginMarkerWait)
	defer p.CancelTimeout()

	el, err := p.ElementR(sel.CampusButton, sel.CampusButtonText)
	if err != nil {
		return false
	}
	return el.WaitVisible() == nil
}

func (s *Session) credentialLogin() error {
	sel := s.config.Selectors

	if err := s.navigatePortal(); err != nil {
		return fmt.Errorf("%w: %v", ErrAuth, err)
	}

	p := s.page.Timeout(s.config.pageTimeout())
	defer p.CancelTimeout()

	username, err := p.Element(sel.UsernameInput)
	if err == nil {
		err = username.WaitVisible()
	}
	if err != nil {
		return fmt.Errorf("%w: login form never became interactable: %v", ErrAuth, err)
	}

	password, err := p.Element(sel.PasswordInput)
	if err != nil {
		return fmt.Errorf("%w: password field not found: %v", ErrAuth, err)
	}

	if err := username.Input(s.config.Username); err != nil {
		return fmt.Errorf("%w: failed to fill username: %v", ErrAuth, err)
	}
	if err := password.Input(s.config.Password); err != nil {
		return fmt.Errorf("%w: failed to fill password: %v", ErrAuth, err)
	}

	if remember, err := p.Element(sel.RememberMe); err == nil {
		if err := remember.Click(proto.InputMouseButtonLeft, 1); err != nil {
			s.log.Warnw("failed to tick remember-me", "error", err)
		}
	}

	submit, err := p.Element(sel.LoginSubmit)
	if err != nil {
		return fmt.Errorf("%w: login button not found: %v", ErrAuth, err)
	}
	if err := submit.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("%w: failed to submit login form: %v", ErrAuth, err)
	}

	if err := s.waitReady(); err != nil {
		return fmt.Errorf("%w: %v", ErrAuth, err)
	}

	if !s.loggedIn() {
		return fmt.Errorf("%w: credentials rejected for %s", ErrAuth, s.config.Username)
	}

	s.log.Infow("credential login succeeded", "user", s.config.Username)
	return nil
}

// persistArtifacts captures cookies and localStorage for future
// fast-path reuse. Only called after a confirmed fresh sign-in.
func (s *Session) persistArtifacts() error {
	cookies, err := s.page.Cookies([]string{s.config.Selectors.PortalURL})
	if err != nil {
		return fmt.Errorf("failed to read cookies: %w", err)
	}

	artifacts := &SessionArtifacts{
		Cookies: fromNetworkCookies(cookies),
		Storage: map[string]string{},
	}

	snapshot, err := s.page.Eval(`() => {
		const data = {};
		for (let i = 0; i < localStorage.length; i++) {
			const key = localStorage.key(i);
			data[key] = localStorage.getItem(key);
		}
		return data;
	}`)
	if err == nil {
		for key, value := range snapshot.Value.Map() {
			artifacts.Storage[key] = value.Str()
		}
	}

	return s.store.Save(artifacts)
}

// HoldOpen blocks until the operator closes the browser window. Used by
// the login-only mode to keep the warmed-up session alive.
func (s *Session) HoldOpen() {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		if !s.alive() {
			s.log.Info("browser closed, exiting")
			return
		}
	}
}

func (s *Session) alive() bool {
	if s.browser == nil {
		return false
	}
	if _, err := s.browser.Version(); err != nil {
		return false
	}
	if s.page != nil {
		if _, err := s.page.Info(); err != nil {
			return false
		}
	}
	return true
}

func cookieParams(cookies []Cookie) []*proto.NetworkCookieParam {
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  proto.TimeSinceEpoch(c.Expires),
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		})
	}
	return params
}

func fromNetworkCookies(cookies []*proto.NetworkCookie) []Cookie {
	out := make([]Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  float64(c.Expires),
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		})
	}
	return out
}

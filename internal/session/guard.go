// Package session owns the bearer credential lifecycle. Every request the
// client sends goes through Guard.Fetch, which attaches the credential and
// turns a missing or rejected credential into a login redirect.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/marianozunino/gallery/internal/apperr"
	"github.com/marianozunino/gallery/internal/clock"
	"github.com/marianozunino/gallery/internal/logging"
	"github.com/marianozunino/gallery/internal/notify"
)

const (
	msgMissingToken = "Authentication token not found. Redirecting to login."
	msgExpired      = "Session expired. Redirecting to login."
	msgNetwork      = "Network error. Please check your connection."
	msgLoggedOut    = "You have been logged out."
)

// Redirector sends the user to the login surface.
type Redirector interface {
	Redirect()
}

// RedirectFunc adapts a function to Redirector.
type RedirectFunc func()

func (f RedirectFunc) Redirect() { f() }

// Guard wraps an http.Client with credential handling.
type Guard struct {
	client        *http.Client
	baseURL       string
	store         Store
	notifier      notify.Notifier
	redirector    Redirector
	sched         clock.Scheduler
	redirectDelay time.Duration
	logoutDelay   time.Duration
	logger        *logging.Logger
}

// GuardConfig collects the Guard's collaborators.
type GuardConfig struct {
	Client        *http.Client
	BaseURL       string // API root, e.g. http://host/api
	Store         Store
	Notifier      notify.Notifier
	Redirector    Redirector
	Scheduler     clock.Scheduler
	RedirectDelay time.Duration
	LogoutDelay   time.Duration
	Logger        *logging.Logger
}

func NewGuard(cfg GuardConfig) *Guard {
	g := &Guard{
		client:        cfg.Client,
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		store:         cfg.Store,
		notifier:      cfg.Notifier,
		redirector:    cfg.Redirector,
		sched:         cfg.Scheduler,
		redirectDelay: cfg.RedirectDelay,
		logoutDelay:   cfg.LogoutDelay,
		logger:        cfg.Logger,
	}
	if g.client == nil {
		g.client = http.DefaultClient
	}
	if g.sched == nil {
		g.sched = clock.NewReal()
	}
	if g.redirector == nil {
		g.redirector = RedirectFunc(func() {})
	}
	if g.logger == nil {
		g.logger = logging.Discard()
	}
	return g
}

// Fetch issues method path (relative to the API root) with the stored
// credential attached. header may be nil; it is never modified.
//
// A missing credential or a 401 response yields apperr.ErrUnauthorized after
// the user has been notified and a redirect scheduled; a transport failure
// yields an error matching apperr.ErrNetwork. Any other response, successful
// or not, is returned to the caller with a nil error.
func (g *Guard) Fetch(ctx context.Context, method, path string, body io.Reader, header http.Header) (*http.Response, error) {
	token, ok := g.store.Token()
	if !ok {
		g.logger.Warn("no credential, skipping request", "method", method, "path", path)
		g.notifier.Notify(msgMissingToken, notify.KindError)
		g.scheduleRedirect(g.redirectDelay)
		return nil, apperr.ErrUnauthorized
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := g.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		g.logger.Error("request failed", "method", method, "path", path, "err", err)
		g.notifier.Notify(msgNetwork, notify.KindError)
		return nil, apperr.Network(err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		g.logger.Warn("credential rejected", "method", method, "path", path)
		if err := g.store.Clear(); err != nil {
			g.logger.Error("failed to clear credential", "err", err)
		}
		g.notifier.Notify(msgExpired, notify.KindError)
		g.scheduleRedirect(g.redirectDelay)
		return nil, apperr.ErrUnauthorized
	}

	g.logger.Debug("request done", "method", method, "path", path, "status", resp.StatusCode)
	return resp, nil
}

// Login stores a credential obtained from the login surface.
func (g *Guard) Login(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("token is required")
	}
	return g.store.SetToken(token)
}

// Logout drops the credential and sends the user back to the login surface.
func (g *Guard) Logout() error {
	if err := g.store.Clear(); err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	g.notifier.Notify(msgLoggedOut, notify.KindSuccess)
	g.scheduleRedirect(g.logoutDelay)
	return nil
}

// Authenticated reports whether a credential is stored.
func (g *Guard) Authenticated() bool {
	_, ok := g.store.Token()
	return ok
}

func (g *Guard) scheduleRedirect(d time.Duration) {
	g.sched.AfterFunc(d, g.redirector.Redirect)
}

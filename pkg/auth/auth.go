// Package auth implements the single-admin login gate.
//
// A Gate compares a submitted password with GOOGLE_MANAGER_ADMIN_PASSWORD,
// locks the gate for a ban period after repeated failures, and issues one
// opaque session token at a time. All state is held in memory; restarting the
// process clears lockouts and sessions.
//
// A missing or blank admin password never admits anyone, and in that case
// Login leaves the attempt counter untouched.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// EnvAdminPassword names the environment variable holding the admin password.
const EnvAdminPassword = "GOOGLE_MANAGER_ADMIN_PASSWORD"

// Policy defaults.
const (
	DefaultMaxAttempts = 3
	DefaultBanDuration = 24 * time.Hour
	DefaultSessionTTL  = 7 * 24 * time.Hour
)

const (
	msgLoggedIn     = "logged in"
	msgLoginOK      = "login successful"
	msgLocked       = "account locked, try again later"
	msgNotLoggedIn  = "not logged in or session expired"
	msgUnset        = EnvAdminPassword + " is not configured, login disabled"
	msgBlank        = EnvAdminPassword + " must not be blank, login disabled"
	msgTokenFailure = "could not create a session, try again"
)

// Result is the outcome of Login and Check.
type Result struct {
	Success      bool   `json:"success"`
	Banned       bool   `json:"banned"`
	Message      string `json:"message"`
	SessionToken string `json:"session_token,omitempty"`
	// ExpiresAt is the session expiry in Unix seconds.
	ExpiresAt int64 `json:"expires_at,omitempty"`
}

// Expiry returns ExpiresAt as a time, or the zero time when unset.
func (r Result) Expiry() time.Time {
	if r.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.Unix(r.ExpiresAt, 0)
}

// EventKind names an auth event reported to an Observer.
type EventKind string

const (
	EventLogin         EventKind = "auth.login"
	EventLoginFailed   EventKind = "auth.login_failed"
	EventLockout       EventKind = "auth.lockout"
	EventLoginBlocked  EventKind = "auth.login_blocked"
	EventLogout        EventKind = "auth.logout"
	EventLogoutFailed  EventKind = "auth.logout_failed"
	EventMisconfigured EventKind = "auth.misconfigured"
)

// Event describes a state change of the gate. It never carries passwords
// or tokens.
type Event struct {
	Kind      EventKind
	Time      time.Time
	Remaining int
}

// Observer receives events after the gate lock has been released.
type Observer interface {
	OnAuthEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnAuthEvent(e Event) { f(e) }

// Gate is the login state machine. The zero value is not usable; call New.
type Gate struct {
	now         func() time.Time
	password    func() (string, bool)
	tokens      io.Reader
	observer    Observer
	maxAttempts int
	banDuration time.Duration
	sessionTTL  time.Duration

	mu             sync.Mutex
	failedAttempts int
	bannedUntil    *time.Time
	sessionToken   string
	sessionExpires *time.Time
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithPasswordSource replaces the environment lookup of the admin password.
func WithPasswordSource(src func() (string, bool)) Option {
	return func(g *Gate) { g.password = src }
}

// WithMaxAttempts sets how many consecutive failures trigger a lockout.
func WithMaxAttempts(n int) Option {
	return func(g *Gate) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// WithBanDuration sets the lockout length.
func WithBanDuration(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.banDuration = d
		}
	}
}

// WithSessionTTL sets the session lifetime.
func WithSessionTTL(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.sessionTTL = d
		}
	}
}

// WithTokenReader replaces crypto/rand as the token source.
func WithTokenReader(r io.Reader) Option {
	return func(g *Gate) { g.tokens = r }
}

// WithObserver registers an event observer.
func WithObserver(o Observer) Option {
	return func(g *Gate) { g.observer = o }
}

// New creates a Gate with default policy.
func New(opts ...Option) *Gate {
	g := &Gate{
		now:         time.Now,
		password:    envPassword,
		tokens:      rand.Reader,
		maxAttempts: DefaultMaxAttempts,
		banDuration: DefaultBanDuration,
		sessionTTL:  DefaultSessionTTL,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func envPassword() (string, bool) {
	return os.LookupEnv(EnvAdminPassword)
}

// adminPassword returns the trimmed configured password or a user-facing
// explanation of why login is disabled.
func (g *Gate) adminPassword() (string, string) {
	v, ok := g.password()
	if !ok {
		return "", msgUnset
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", msgBlank
	}
	return v, ""
}

// Configured reports whether a usable admin password is set.
func (g *Gate) Configured() bool {
	_, reason := g.adminPassword()
	return reason == ""
}

// sweep clears an elapsed ban and an elapsed session. Caller holds g.mu.
func (g *Gate) sweep(now time.Time) {
	if g.bannedUntil != nil && !now.Before(*g.bannedUntil) {
		g.bannedUntil = nil
	}
	if g.sessionExpires != nil && !now.Before(*g.sessionExpires) {
		g.clearSession()
	}
}

func (g *Gate) clearSession() {
	g.sessionToken = ""
	g.sessionExpires = nil
}

func (g *Gate) banned(now time.Time) bool {
	return g.bannedUntil != nil && now.Before(*g.bannedUntil)
}

// Login checks password and, on success, replaces any existing session.
func (g *Gate) Login(password string) Result {
	configured, reason := g.adminPassword()
	if reason != "" {
		g.emit(Event{Kind: EventMisconfigured, Time: g.now()})
		return Result{Message: reason}
	}

	res, ev := g.login(password, configured)
	g.emit(ev)
	return res
}

func (g *Gate) login(password, configured string) (Result, Event) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.sweep(now)

	if g.banned(now) {
		return Result{Banned: true, Message: g.lockoutMessage()},
			Event{Kind: EventLoginBlocked, Time: now}
	}

	if subtle.ConstantTimeCompare([]byte(password), []byte(configured)) == 1 {
		token, err := newToken(g.tokens)
		if err != nil {
			return Result{Message: msgTokenFailure}, Event{Kind: EventLoginFailed, Time: now, Remaining: g.maxAttempts - g.failedAttempts}
		}
		expires := now.Add(g.sessionTTL)
		g.failedAttempts = 0
		g.bannedUntil = nil
		g.sessionToken = token
		g.sessionExpires = &expires
		return Result{
			Success:      true,
			Message:      msgLoginOK,
			SessionToken: token,
			ExpiresAt:    expires.Unix(),
		}, Event{Kind: EventLogin, Time: now}
	}

	g.failedAttempts++
	if g.failedAttempts >= g.maxAttempts {
		until := now.Add(g.banDuration)
		g.failedAttempts = 0
		g.bannedUntil = &until
		g.clearSession()
		return Result{Banned: true, Message: g.lockoutMessage()},
			Event{Kind: EventLockout, Time: now}
	}

	remaining := g.maxAttempts - g.failedAttempts
	return Result{Message: fmt.Sprintf("wrong password, %d attempt(s) remaining", remaining)},
		Event{Kind: EventLoginFailed, Time: now, Remaining: remaining}
}

func (g *Gate) lockoutMessage() string {
	return "too many failed attempts, locked for " + formatDuration(g.banDuration)
}

func formatDuration(d time.Duration) string {
	if d >= time.Hour && d%time.Hour == 0 {
		return fmt.Sprintf("%d hours", d/time.Hour)
	}
	return d.String()
}

// Check reports whether token is the active session. It never changes the
// failed-attempt counter.
func (g *Gate) Check(token string) Result {
	if _, reason := g.adminPassword(); reason != "" {
		return Result{Message: reason}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.sweep(now)

	if g.banned(now) {
		return Result{Banned: true, Message: msgLocked}
	}

	token = strings.TrimSpace(token)
	if token != "" && g.sessionToken != "" && g.sessionExpires != nil &&
		subtle.ConstantTimeCompare([]byte(token), []byte(g.sessionToken)) == 1 {
		return Result{
			Success:      true,
			Message:      msgLoggedIn,
			SessionToken: g.sessionToken,
			ExpiresAt:    g.sessionExpires.Unix(),
		}
	}
	return Result{Message: msgNotLoggedIn}
}

// Require returns nil iff token is the active session, and an *AuthError otherwise.
func (g *Gate) Require(token string) error {
	if _, reason := g.adminPassword(); reason != "" {
		return &AuthError{NotConfigured: true, Message: reason}
	}
	res := g.Check(token)
	if res.Success {
		return nil
	}
	return &AuthError{Banned: res.Banned, Message: res.Message}
}

// Logout ends the session. An empty token clears any session unconditionally;
// any other token must match the active one.
func (g *Gate) Logout(token string) error {
	err := g.logout(strings.TrimSpace(token))
	if err != nil {
		g.emit(Event{Kind: EventLogoutFailed, Time: g.now()})
		return err
	}
	g.emit(Event{Kind: EventLogout, Time: g.now()})
	return nil
}

func (g *Gate) logout(token string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if token == "" {
		g.clearSession()
		return nil
	}
	if g.sessionToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(g.sessionToken)) == 1 {
		g.clearSession()
		return nil
	}
	return ErrInvalidSession
}

func (g *Gate) emit(e Event) {
	if g.observer != nil {
		g.observer.OnAuthEvent(e)
	}
}

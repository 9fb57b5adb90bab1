// Package authgate delays network work until a session token has been seen
// and stayed put for a short settle window. This keeps startup from racing
// the restore of a persisted session.
package authgate

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNotReady is returned by gated operations while no stable token exists.
// Callers treat it as "disabled", not as a failure.
var ErrNotReady = errors.New("auth not ready")

// State is the gate state.
type State int

const (
	// Unknown: nothing observed yet, or a token is still settling.
	Unknown State = iota
	NotReady
	Ready
)

func (s State) String() string {
	switch s {
	case NotReady:
		return "not-ready"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

// pollInterval bounds how long WaitReady sleeps when no settle deadline is pending.
const pollInterval = 50 * time.Millisecond

// Gate is the auth-readiness state machine.
type Gate struct {
	mu       sync.Mutex
	settle   time.Duration
	now      func() time.Time
	state    State
	token    string
	exp      time.Time
	since    time.Time
	onLogout []func()
}

// New returns a Gate in the Unknown state.
func New(settle time.Duration) *Gate {
	return &Gate{settle: settle, now: time.Now}
}

// SetClock replaces the time source. Used by tests.
func (g *Gate) SetClock(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
}

// Observe records the token currently held by the session layer. An empty
// or expired token moves the gate to NotReady. A new token restarts the
// settle window unless the gate is already Ready.
func (g *Gate) Observe(token string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	exp := expiry(token)
	if token == "" || (!exp.IsZero() && !exp.After(g.now())) {
		g.state = NotReady
		g.token = ""
		g.exp = time.Time{}
		g.since = time.Time{}
		return
	}
	if token == g.token {
		return
	}
	g.token = token
	g.exp = exp
	if g.state == Ready {
		return
	}
	g.state = Unknown
	g.since = g.now()
}

// State evaluates the settle window lazily and returns the current state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.evaluate()
}

// evaluate must be called with mu held. A JWT whose exp passes while held
// drops the gate to NotReady.
func (g *Gate) evaluate() State {
	if g.token != "" && !g.exp.IsZero() && !g.exp.After(g.now()) {
		g.state = NotReady
		g.token = ""
		g.exp = time.Time{}
		g.since = time.Time{}
		return g.state
	}
	if g.state == Unknown && g.token != "" && g.now().Sub(g.since) >= g.settle {
		g.state = Ready
	}
	return g.state
}

// Ready reports whether gated work may proceed.
func (g *Gate) Ready() bool {
	return g.State() == Ready
}

// Check returns ErrNotReady unless the gate is Ready.
func (g *Gate) Check() error {
	if !g.Ready() {
		return ErrNotReady
	}
	return nil
}

// Token returns the observed token, settled or not. An expired JWT reads
// as "".
func (g *Gate) Token() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.evaluate()
	return g.token
}

// WaitReady blocks until the gate is Ready, it becomes NotReady, or ctx ends.
func (g *Gate) WaitReady(ctx context.Context) error {
	for {
		g.mu.Lock()
		st := g.evaluate()
		wait := pollInterval
		if st == Unknown && g.token != "" {
			if remaining := g.settle - g.now().Sub(g.since); remaining > 0 && remaining < wait {
				wait = remaining
			}
		}
		g.mu.Unlock()

		switch st {
		case Ready:
			return nil
		case NotReady:
			return ErrNotReady
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// OnLogout registers fn to run on every Logout, in registration order.
func (g *Gate) OnLogout(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onLogout = append(g.onLogout, fn)
}

// Logout drops the token, moves to NotReady and runs the logout hooks.
func (g *Gate) Logout() {
	g.mu.Lock()
	g.state = NotReady
	g.token = ""
	g.exp = time.Time{}
	g.since = time.Time{}
	hooks := append([]func(){}, g.onLogout...)
	g.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}

// expiry returns the unverified exp claim of a JWT, or the zero time for
// opaque tokens and JWTs without exp.
func expiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

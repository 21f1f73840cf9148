package middleware

import (
	"net/http"
	"net/url"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/token"
)

// DecisionKind is the gate's verdict.
type DecisionKind uint8

const (
	// Admit lets the request through.
	Admit DecisionKind = iota
	// Redirect sends the caller to Decision.Location.
	Redirect
)

// String returns "admit" or "redirect".
func (k DecisionKind) String() string {
	if k == Redirect {
		return "redirect"
	}
	return "admit"
}

// Decision is the outcome of [Gate.Decide].
type Decision struct {
	Kind     DecisionKind
	Location string

	// State is the classified session state. It is StateInvalid for excluded
	// paths, which are never looked up.
	State     token.State
	SessionID string
	Excluded  bool
	AuthPage  bool
}

// Gate decides admission from the session state.
type Gate struct {
	engine  *goSession.Engine
	cfg     goSession.GateConfig
	matcher *Matcher
}

// NewGate creates a gate over engine using its gate configuration.
func NewGate(engine *goSession.Engine) *Gate {
	cfg := engine.Config().Gate
	return &Gate{
		engine:  engine,
		cfg:     cfg,
		matcher: NewMatcher(cfg),
	}
}

// Matcher returns the gate's path matcher.
func (g *Gate) Matcher() *Matcher {
	return g.matcher
}

// Decide classifies the request's session and returns the admission decision.
//
//   - Excluded paths and the auth endpoints are admitted without a lookup.
//   - Auth pages admit invalid sessions and redirect any other state home.
//   - Every other path admits usable and recoverable sessions and redirects
//     invalid ones to the login page with a safe callback target.
func (g *Gate) Decide(r *http.Request) Decision {
	path := r.URL.Path
	if g.matcher.Excluded(path) || g.matcher.IsAuthEndpoint(path) {
		return Decision{Kind: Admit, Excluded: true}
	}

	sid := g.engine.SessionIDFromRequest(r)
	state := token.StateInvalid
	if sid != "" {
		state = g.engine.State(r.Context(), sid)
	}
	d := Decision{State: state, SessionID: sid}

	if g.matcher.IsAuthPage(path) {
		d.AuthPage = true
		if state != token.StateInvalid {
			d.Kind = Redirect
			d.Location = g.cfg.HomePath
		}
		return d
	}

	if state.Admissible() {
		d.Kind = Admit
		return d
	}

	d.Kind = Redirect
	d.Location = g.loginLocation(r)
	return d
}

func (g *Gate) loginLocation(r *http.Request) string {
	target := r.URL.Path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	target = ResolveSafeRedirectTargetFor(target, g.cfg.AuthPrefix)
	return g.cfg.LoginPath + "?" + url.Values{g.cfg.CallbackParam: {target}}.Encode()
}

package middleware

import (
	"encoding/json"
	"net/http"

	goSession "github.com/MrEthical07/goSession"
)

type errorBody struct {
	Detail string `json:"detail"`
}

// Guard enforces gate decisions. Admitted requests carry the session ID and
// state in their context.
func Guard(gate *Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if gate == nil {
				writeUnauthorized(w)
				return
			}
			metrics := gate.engine.Metrics()

			d := gate.Decide(r)
			if d.Kind == Admit {
				if !d.Excluded {
					metrics.Inc(goSession.MetricGateAdmit)
				}
				next.ServeHTTP(w, withDecision(r, d))
				return
			}

			if !d.AuthPage && gate.matcher.IsAPI(r.URL.Path) {
				metrics.Inc(goSession.MetricGateUnauthorized)
				writeUnauthorized(w)
				return
			}
			metrics.Inc(goSession.MetricGateRedirect)
			redirect(w, r, d.Location)
		})
	}
}

// RequireSession admits usable and recoverable sessions and answers JSON 401
// otherwise. Admission does not mean the stored access token is fresh:
// handlers making outbound calls must obtain one from Engine.AccessToken.
func RequireSession(engine *goSession.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				writeUnauthorized(w)
				return
			}

			sid := engine.SessionIDFromRequest(r)
			if sid == "" {
				engine.Metrics().Inc(goSession.MetricGateUnauthorized)
				writeUnauthorized(w)
				return
			}
			state := engine.State(r.Context(), sid)
			if !state.Admissible() {
				engine.Metrics().Inc(goSession.MetricGateUnauthorized)
				writeUnauthorized(w)
				return
			}

			engine.Metrics().Inc(goSession.MetricGateAdmit)
			next.ServeHTTP(w, withDecision(r, Decision{Kind: Admit, State: state, SessionID: sid}))
		})
	}
}

// RedirectAuthenticated sends callers whose session is not invalid to the
// home page. It is meant for login and register handlers mounted outside
// [Guard].
func RedirectAuthenticated(gate *Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if gate == nil {
				next.ServeHTTP(w, r)
				return
			}
			sid := gate.engine.SessionIDFromRequest(r)
			if sid != "" && gate.engine.State(r.Context(), sid).Admissible() {
				gate.engine.Metrics().Inc(goSession.MetricGateRedirect)
				redirect(w, r, gate.cfg.HomePath)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func withDecision(r *http.Request, d Decision) *http.Request {
	if d.SessionID == "" {
		return r
	}
	ctx := goSession.WithSessionID(r.Context(), d.SessionID)
	ctx = goSession.WithSessionState(ctx, d.State)
	return r.WithContext(ctx)
}

func redirect(w http.ResponseWriter, r *http.Request, location string) {
	code := http.StatusSeeOther
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		code = http.StatusTemporaryRedirect
	}
	http.Redirect(w, r, location, code)
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(errorBody{Detail: "Not authenticated"})
}

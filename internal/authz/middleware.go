package authz

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/mealdesk/mealdesk/internal/platform/httpx"
	"github.com/mealdesk/mealdesk/internal/shared"
)

// Decision outcomes recorded per guard check.
const (
	DecisionAllowed         = "allowed"
	DecisionDenied          = "denied"
	DecisionUnauthenticated = "unauthenticated"
	DecisionError           = "error"
)

// DecisionRecorder counts guard outcomes; implemented by observability.
type DecisionRecorder interface {
	RecordDecision(outcome string)
}

// Guard wires authorization middleware for HTTP handlers. It contains no
// resolution logic of its own: every answer comes from the Builder and the
// Router, so API guards and page guards cannot diverge.
type Guard struct {
	Builder   *Builder
	Registry  *Registry
	Logger    *slog.Logger
	Decisions DecisionRecorder

	// LoginURL and DeniedURL are the page-guard redirect targets.
	LoginURL  string
	DeniedURL string
}

// RequireAny admits requests whose user holds at least one of the keys.
// Unauthenticated → 401, denied → 403, resolution failure → 500; the three
// are never conflated.
func (g Guard) RequireAny(keys ...string) func(http.Handler) http.Handler {
	required := g.mustKeys(keys)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			g.check(w, r, next, required, false, anyHolds)
		})
	}
}

// RequireAll admits requests whose user holds every key.
func (g Guard) RequireAll(keys ...string) func(http.Handler) http.Handler {
	required := g.mustKeys(keys)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			g.check(w, r, next, required, false, allHold)
		})
	}
}

// RedirectAny is the page-guard variant of RequireAny: the same decision,
// surfaced as redirects instead of problem bodies.
func (g Guard) RedirectAny(keys ...string) func(http.Handler) http.Handler {
	required := g.mustKeys(keys)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			g.check(w, r, next, required, true, anyHolds)
		})
	}
}

// RedirectAuthenticated admits any authenticated user and sends anonymous
// users to login. The basic dashboard requires identity, not capability.
func (g Guard) RedirectAuthenticated() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := g.currentUserID(r); !ok {
				g.record(DecisionUnauthenticated)
				http.Redirect(w, r, g.loginURL(), http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LandingRedirect returns the handler for "/": authenticated users are sent
// to the landing area the route table picks for them.
func (g Guard) LandingRedirect(router *Router) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := g.currentUserID(r)
		if !ok {
			http.Redirect(w, r, g.loginURL(), http.StatusSeeOther)
			return
		}
		route, err := router.ResolveRoute(r.Context(), userID)
		if err != nil {
			g.record(DecisionError)
			g.logError("resolve landing route", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, string(route), http.StatusSeeOther)
	}
}

func (g Guard) check(w http.ResponseWriter, r *http.Request, next http.Handler, required []Key, redirect bool, holds func(Set, []Key) bool) {
	if len(required) == 0 {
		next.ServeHTTP(w, r)
		return
	}

	userID, ok := g.currentUserID(r)
	if !ok {
		g.record(DecisionUnauthenticated)
		if redirect {
			http.Redirect(w, r, g.loginURL(), http.StatusSeeOther)
			return
		}
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}

	pctx, err := g.Builder.CachedContext(r.Context(), userID)
	if err != nil {
		g.record(DecisionError)
		g.logError("build permission context", err)
		if redirect {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		httpx.RespondError(w, err)
		return
	}

	if holds(pctx.Permissions, required) {
		g.record(DecisionAllowed)
		next.ServeHTTP(w, r)
		return
	}

	g.record(DecisionDenied)
	if redirect {
		http.Redirect(w, r, g.deniedURL(), http.StatusSeeOther)
		return
	}
	httpx.RespondError(w, httpx.ErrForbidden)
}

func anyHolds(set Set, required []Key) bool {
	for _, k := range required {
		if set.Has(k) {
			return true
		}
	}
	return false
}

func allHold(set Set, required []Key) bool {
	for _, k := range required {
		if !set.Has(k) {
			return false
		}
	}
	return true
}

func (g Guard) mustKeys(keys []string) []Key {
	parsed := make([]Key, 0, len(keys))
	for _, raw := range keys {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		parsed = append(parsed, g.Registry.MustKey(raw))
	}
	return parsed
}

func (g Guard) currentUserID(r *http.Request) (int64, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return 0, false
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		g.logError("parse session user id", err)
		return 0, false
	}
	return id, true
}

func (g Guard) record(outcome string) {
	if g.Decisions != nil {
		g.Decisions.RecordDecision(outcome)
	}
}

func (g Guard) logError(msg string, err error) {
	if g.Logger != nil {
		g.Logger.Error(msg, slog.Any("error", err))
	}
}

func (g Guard) loginURL() string {
	if g.LoginURL != "" {
		return g.LoginURL
	}
	return "/auth/login"
}

func (g Guard) deniedURL() string {
	if g.DeniedURL != "" {
		return g.DeniedURL
	}
	return "/denied"
}

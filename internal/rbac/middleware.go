package rbac

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gatehouse-app/gatehouse/internal/shared"
)

// Authorizer is the permission predicate consumed by the gate and the view
// layer. *Service satisfies it.
type Authorizer interface {
	IsAuthorized(ctx context.Context, username, controller, action string) (bool, error)
}

// Gate enforces dynamic authorization per request. Anonymous requests are
// sent to the login page; authenticated requests without a grant receive 403.
type Gate struct {
	Authorizer Authorizer
	Logger     *slog.Logger
	LoginPath  string
	// Denied observes each denial when set: "redirect" for anonymous
	// requests, "forbidden" for authenticated ones without a grant.
	Denied func(outcome string)
}

// Protect guards the wrapped handler as the given controller/action pair.
// The pair comes from the static endpoint registration done at startup, not
// from inspecting the handler.
func (g Gate) Protect(controller, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := shared.SessionFromContext(r.Context())
			if sess == nil || sess.User() == "" {
				g.denied("redirect")
				http.Redirect(w, r, g.loginPath(), http.StatusSeeOther)
				return
			}

			ok, err := g.Authorizer.IsAuthorized(r.Context(), sess.User(), controller, action)
			if err != nil {
				if g.Logger != nil {
					g.Logger.Error("authorization check",
						slog.String("controller", controller),
						slog.String("action", action),
						slog.Any("error", err))
				}
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if !ok {
				// Authenticated but not granted: 403, no redirect.
				g.denied("forbidden")
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (g Gate) denied(outcome string) {
	if g.Denied != nil {
		g.Denied(outcome)
	}
}

func (g Gate) loginPath() string {
	if g.LoginPath == "" {
		return "/auth/login"
	}
	return g.LoginPath
}

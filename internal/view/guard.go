package view

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"

	"github.com/gatehouse-app/gatehouse/internal/rbac"
)

// Guard hides navigation the current user cannot follow. It runs the same
// predicate as the enforcement gate but is advisory only: the gate remains
// the authority at the action itself, a suppressed link is pure UI.
type Guard struct {
	ctx               context.Context
	username          string
	authorizer        rbac.Authorizer
	currentController string
	logger            *slog.Logger
}

// NewGuard builds a Guard for one render. currentController is used when a
// link omits the controller name.
func NewGuard(ctx context.Context, username string, authorizer rbac.Authorizer, currentController string, logger *slog.Logger) *Guard {
	return &Guard{
		ctx:               ctx,
		username:          username,
		authorizer:        authorizer,
		currentController: currentController,
		logger:            logger,
	}
}

// Can reports whether the current user may invoke controller/action. An
// anonymous user or a failed lookup renders as "cannot": the page then just
// shows fewer links.
func (g *Guard) Can(controller, action string) bool {
	if g == nil || g.username == "" || g.authorizer == nil {
		return false
	}
	if controller == "" {
		controller = g.currentController
	}
	ok, err := g.authorizer.IsAuthorized(g.ctx, g.username, controller, action)
	if err != nil {
		if g.logger != nil {
			g.logger.Warn("link visibility check",
				slog.String("controller", controller),
				slog.String("action", action),
				slog.Any("error", err))
		}
		return false
	}
	return ok
}

// CanAction is Can with the controller defaulted to the rendering context's.
func (g *Guard) CanAction(action string) bool {
	return g.Can("", action)
}

// Link renders an anchor element for the target endpoint, or nothing at all
// when the user lacks the grant.
func (g *Guard) Link(label, href, controller, action string) template.HTML {
	if !g.Can(controller, action) {
		return ""
	}
	return template.HTML(fmt.Sprintf(`<a href="%s">%s</a>`,
		template.HTMLEscapeString(href), template.HTMLEscapeString(label)))
}

// Package access serves the user-access pages: which roles each user holds,
// and the form that replaces a user's role membership.
package access

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/gatehouse-app/gatehouse/internal/catalog"
	"github.com/gatehouse-app/gatehouse/internal/rbac"
	"github.com/gatehouse-app/gatehouse/internal/shared"
	"github.com/gatehouse-app/gatehouse/internal/view"
)

// Controller is the catalog name this handler enforces and registers under.
const Controller = "Access"

// Service is the assignment port consumed by this handler.
type Service interface {
	ListUserAccess(ctx context.Context) ([]rbac.UserAccess, error)
	GetUserAccess(ctx context.Context, userID int64) (rbac.UserAccess, error)
	ListRoles(ctx context.Context) ([]rbac.Role, error)
	AssignRolesToUser(ctx context.Context, actor string, userID int64, roleIDs []int64) error
}

// Handler serves the access assignment pages.
type Handler struct {
	logger    *slog.Logger
	service   Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	gate      rbac.Gate
	authz     rbac.Authorizer
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service Service, templates *view.Engine, csrf *shared.CSRFManager, gate rbac.Gate, authz rbac.Authorizer) *Handler {
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, gate: gate, authz: authz}
}

// Describe registers this handler's endpoints in the catalog builder.
func Describe(b *catalog.Builder) {
	b.Controller(Controller, "User access").
		Action("Index", "Access list").
		Action("Edit", "Edit access")
}

// MountRoutes registers access routes behind the authorization gate.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.gate.Protect(Controller, "Index"))
		r.Get("/", h.listAccess)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.gate.Protect(Controller, "Edit"))
		r.Get("/{id}/edit", h.showEditForm)
		r.Post("/{id}", h.updateAccess)
	})
}

type editPageData struct {
	User     rbac.UserAccess
	Roles    []rbac.Role
	Assigned map[string]bool
	Errors   map[string]string
}

func (h *Handler) listAccess(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUserAccess(r.Context())
	if err != nil {
		h.logger.Error("list user access", slog.Any("error", err))
		h.render(w, r, "pages/access/list.html", map[string]any{"Errors": map[string]string{"general": shared.UserSafeMessage(err)}}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/access/list.html", map[string]any{"Users": users}, http.StatusOK)
}

func (h *Handler) showEditForm(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	user, err := h.service.GetUserAccess(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("get user access", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	assigned := make(map[string]bool, len(user.Roles))
	for _, name := range user.Roles {
		assigned[name] = true
	}
	h.render(w, r, "pages/access/form.html", editPageData{
		User:     user,
		Roles:    roles,
		Assigned: assigned,
		Errors:   map[string]string{},
	}, http.StatusOK)
}

func (h *Handler) updateAccess(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	roleIDs := make([]int64, 0, len(r.PostForm["roles"]))
	for _, raw := range r.PostForm["roles"] {
		roleID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		roleIDs = append(roleIDs, roleID)
	}

	actor := ""
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		actor = sess.User()
	}
	if err := h.service.AssignRolesToUser(r.Context(), actor, id, roleIDs); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("assign roles", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Access updated"})
	}
	http.Redirect(w, r, "/access", http.StatusSeeOther)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template string, data any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	username := ""
	if sess != nil {
		flash = sess.PopFlash()
		username = sess.User()
	}
	viewData := view.TemplateData{
		Title:       "User access",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Username:    username,
		Guard:       view.NewGuard(r.Context(), username, h.authz, Controller, h.logger),
		Data:        data,
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	if err := h.templates.Render(w, template, viewData); err != nil {
		h.logger.Error("render template", slog.String("template", template), slog.Any("error", err))
	}
}

func parseID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

package roles

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/gatehouse-app/gatehouse/internal/catalog"
	"github.com/gatehouse-app/gatehouse/internal/platform/httpx"
	"github.com/gatehouse-app/gatehouse/internal/rbac"
	"github.com/gatehouse-app/gatehouse/internal/shared"
	"github.com/gatehouse-app/gatehouse/internal/view"
)

// Controller is the catalog name this handler enforces and registers under.
const Controller = "Role"

// permissionSeparator joins controller and action in checkbox values. It is
// also the key separator for the selected-state map handed to templates.
const permissionSeparator = "|"

// Service is the role management port consumed by this handler.
type Service interface {
	ListRoles(ctx context.Context) ([]rbac.Role, error)
	GetRole(ctx context.Context, id int64) (rbac.Role, error)
	CreateRole(ctx context.Context, actor, name string, perms []rbac.Permission) (rbac.Role, error)
	UpdateRole(ctx context.Context, actor string, id int64, name string, perms []rbac.Permission) (rbac.Role, error)
	DeleteRole(ctx context.Context, actor string, id int64) (bool, error)
}

// Handler serves the role management pages.
type Handler struct {
	logger    *slog.Logger
	service   Service
	registry  *catalog.Registry
	templates *view.Engine
	csrf      *shared.CSRFManager
	gate      rbac.Gate
	authz     rbac.Authorizer
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service Service, registry *catalog.Registry, templates *view.Engine, csrf *shared.CSRFManager, gate rbac.Gate, authz rbac.Authorizer) *Handler {
	return &Handler{logger: logger, service: service, registry: registry, templates: templates, csrf: csrf, gate: gate, authz: authz}
}

// Describe registers this handler's endpoints in the catalog builder.
func Describe(b *catalog.Builder) {
	b.Controller(Controller, "Role management").
		Action("Index", "Role list").
		Action("Create", "Create role").
		Action("Edit", "Edit role").
		Action("Delete", "Delete role")
}

// MountRoutes registers role routes behind the authorization gate.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.gate.Protect(Controller, "Index"))
		r.Get("/", h.listRoles)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.gate.Protect(Controller, "Create"))
		r.Get("/new", h.showCreateForm)
		r.Post("/", h.createRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.gate.Protect(Controller, "Edit"))
		r.Get("/{id}/edit", h.showEditForm)
		r.Post("/{id}", h.updateRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.gate.Protect(Controller, "Delete"))
		r.Post("/{id}/delete", h.deleteRole)
	})
}

type formPageData struct {
	Role      rbac.Role
	Endpoints []catalog.EndpointDescriptor
	Selected  map[string]bool
	Errors    map[string]string
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		h.render(w, r, "pages/roles/list.html", map[string]any{"Errors": map[string]string{"general": shared.UserSafeMessage(err)}}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/roles/list.html", map[string]any{"Roles": roles}, http.StatusOK)
}

func (h *Handler) showCreateForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/roles/form.html", formPageData{
		Endpoints: h.registry.Endpoints(),
		Selected:  map[string]bool{},
		Errors:    map[string]string{},
	}, http.StatusOK)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	name := r.PostFormValue("name")
	perms := h.parsePermissions(r.PostForm["permissions"])

	_, err := h.service.CreateRole(r.Context(), h.actor(r), name, perms)
	if err != nil {
		if errors.Is(err, shared.ErrValidation) {
			h.render(w, r, "pages/roles/form.html", formPageData{
				Role:      rbac.Role{Name: name},
				Endpoints: h.registry.Endpoints(),
				Selected:  selectedSet(perms),
				Errors:    map[string]string{"general": shared.UserSafeMessage(err)},
			}, http.StatusBadRequest)
			return
		}
		h.logger.Error("create role", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.redirectWithFlash(w, r, "/roles", "success", "Role created")
}

func (h *Handler) showEditForm(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("get role", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/roles/form.html", formPageData{
		Role:      role,
		Endpoints: h.registry.Endpoints(),
		Selected:  selectedSet(role.Permissions),
		Errors:    map[string]string{},
	}, http.StatusOK)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	name := r.PostFormValue("name")
	perms := h.parsePermissions(r.PostForm["permissions"])

	_, err = h.service.UpdateRole(r.Context(), h.actor(r), id, name, perms)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		http.NotFound(w, r)
	case errors.Is(err, shared.ErrValidation):
		h.render(w, r, "pages/roles/form.html", formPageData{
			Role:      rbac.Role{ID: id, Name: name},
			Endpoints: h.registry.Endpoints(),
			Selected:  selectedSet(perms),
			Errors:    map[string]string{"general": shared.UserSafeMessage(err)},
		}, http.StatusBadRequest)
	case err != nil:
		h.logger.Error("update role", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	default:
		h.redirectWithFlash(w, r, "/roles", "success", "Role updated")
	}
}

// deleteRole responds with a JSON boolean: true on deletion, false with 404
// when the id is unknown.
func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.JSON(w, http.StatusNotFound, false)
		return
	}
	deleted, err := h.service.DeleteRole(r.Context(), h.actor(r), id)
	if err != nil {
		h.logger.Error("delete role", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if !deleted {
		httpx.JSON(w, http.StatusNotFound, false)
		return
	}
	httpx.JSON(w, http.StatusOK, true)
}

func (h *Handler) actor(r *http.Request) string {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		return sess.User()
	}
	return ""
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
		Title:       "Roles",
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

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

func parseID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// parsePermissions decodes checkbox values of the form "Controller|Action".
// Pairs outside the endpoint registry cannot come from the rendered form
// and are dropped, so a crafted request can never grant an unknown endpoint.
func (h *Handler) parsePermissions(values []string) []rbac.Permission {
	perms := make([]rbac.Permission, 0, len(values))
	for _, value := range values {
		controller, action, ok := strings.Cut(value, permissionSeparator)
		if !ok || !h.registry.Contains(controller, action) {
			continue
		}
		perms = append(perms, rbac.Permission{Controller: controller, Action: action})
	}
	return perms
}

func selectedSet(perms []rbac.Permission) map[string]bool {
	selected := make(map[string]bool, len(perms))
	for _, perm := range perms {
		selected[strings.ToLower(perm.Controller)+permissionSeparator+strings.ToLower(perm.Action)] = true
	}
	return selected
}

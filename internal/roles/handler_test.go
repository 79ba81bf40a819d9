package roles_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-app/gatehouse/internal/catalog"
	"github.com/gatehouse-app/gatehouse/internal/rbac"
	"github.com/gatehouse-app/gatehouse/internal/roles"
	"github.com/gatehouse-app/gatehouse/internal/shared"
	"github.com/gatehouse-app/gatehouse/internal/view"
	_ "github.com/gatehouse-app/gatehouse/testing"
)

type fakeService struct {
	roles    map[int64]rbac.Role
	nextID   int64
	lastName string
}

func newFakeService() *fakeService {
	return &fakeService{roles: map[int64]rbac.Role{}, nextID: 1}
}

func (f *fakeService) ListRoles(ctx context.Context) ([]rbac.Role, error) {
	out := make([]rbac.Role, 0, len(f.roles))
	for _, role := range f.roles {
		out = append(out, role)
	}
	return out, nil
}

func (f *fakeService) GetRole(ctx context.Context, id int64) (rbac.Role, error) {
	role, ok := f.roles[id]
	if !ok {
		return rbac.Role{}, shared.ErrNotFound
	}
	return role, nil
}

func (f *fakeService) CreateRole(ctx context.Context, actor, name string, perms []rbac.Permission) (rbac.Role, error) {
	if strings.TrimSpace(name) == "" {
		return rbac.Role{}, shared.ErrValidation
	}
	role := rbac.Role{ID: f.nextID, Name: name, Permissions: perms, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	f.roles[f.nextID] = role
	f.nextID++
	f.lastName = name
	return role, nil
}

func (f *fakeService) UpdateRole(ctx context.Context, actor string, id int64, name string, perms []rbac.Permission) (rbac.Role, error) {
	if _, ok := f.roles[id]; !ok {
		return rbac.Role{}, shared.ErrNotFound
	}
	if strings.TrimSpace(name) == "" {
		return rbac.Role{}, shared.ErrValidation
	}
	role := rbac.Role{ID: id, Name: name, Permissions: perms, UpdatedAt: time.Now()}
	f.roles[id] = role
	return role, nil
}

func (f *fakeService) DeleteRole(ctx context.Context, actor string, id int64) (bool, error) {
	if _, ok := f.roles[id]; !ok {
		return false, nil
	}
	delete(f.roles, id)
	return true, nil
}

type allowAll struct{}

func (allowAll) IsAuthorized(ctx context.Context, username, controller, action string) (bool, error) {
	return true, nil
}

func testRegistry() *catalog.Registry {
	builder := catalog.NewBuilder()
	roles.Describe(builder)
	builder.Controller("Access", "User access").
		Action("Index", "Access list")
	return builder.Build()
}

// newRolesRouter mounts the handler behind a session-loading middleware the
// way the application router does.
func newRolesRouter(t *testing.T, service roles.Service) (*chi.Mux, *shared.SessionManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(redisClient, "test_session", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")
	templates, err := view.NewEngine()
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gate := rbac.Gate{Authorizer: allowAll{}, Logger: logger}
	handler := roles.NewHandler(logger, service, testRegistry(), templates, csrfManager, gate, allowAll{})

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := sessionManager.Load(r.Context(), r)
			require.NoError(t, err)
			sess.SetUser("admin")
			next.ServeHTTP(w, r.WithContext(shared.ContextWithSession(r.Context(), sess)))
		})
	})
	router.Route("/roles", handler.MountRoutes)
	return router, sessionManager
}

func TestRoleListPage(t *testing.T) {
	service := newFakeService()
	_, err := service.CreateRole(context.Background(), "admin", "Editor", []rbac.Permission{{Controller: "Role", Action: "Index"}})
	require.NoError(t, err)

	router, _ := newRolesRouter(t, service)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/roles", nil))

	require.Equal(t, http.StatusOK, res.Code)
	require.Contains(t, res.Body.String(), "Editor")
}

func TestRoleCreateFromForm(t *testing.T) {
	service := newFakeService()
	router, _ := newRolesRouter(t, service)

	form := url.Values{}
	form.Set("name", "Support")
	form.Add("permissions", "Role|Index")
	form.Add("permissions", "Access|Index")

	req := httptest.NewRequest(http.MethodPost, "/roles", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	require.Equal(t, http.StatusSeeOther, res.Code)
	require.Equal(t, "/roles", res.Header().Get("Location"))
	require.Equal(t, "Support", service.lastName)

	created := service.roles[1]
	require.Len(t, created.Permissions, 2)
	require.Equal(t, rbac.Permission{Controller: "Role", Action: "Index"}, created.Permissions[0])
}

func TestRoleCreateDropsUnregisteredPermissions(t *testing.T) {
	service := newFakeService()
	router, _ := newRolesRouter(t, service)

	form := url.Values{}
	form.Set("name", "Support")
	form.Add("permissions", "Role|Index")
	form.Add("permissions", "Ghost|Pwn")
	form.Add("permissions", "malformed-value")

	req := httptest.NewRequest(http.MethodPost, "/roles", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	require.Equal(t, http.StatusSeeOther, res.Code)
	created := service.roles[1]
	require.Equal(t, []rbac.Permission{{Controller: "Role", Action: "Index"}}, created.Permissions)
}

func TestRoleCreateValidationRerendersForm(t *testing.T) {
	service := newFakeService()
	router, _ := newRolesRouter(t, service)

	form := url.Values{}
	form.Set("name", "   ")

	req := httptest.NewRequest(http.MethodPost, "/roles", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	require.Equal(t, http.StatusBadRequest, res.Code)
	require.Contains(t, res.Body.String(), "<form")
	require.Empty(t, service.roles)
}

func TestRoleEditFormShowsCheckedPermissions(t *testing.T) {
	service := newFakeService()
	_, err := service.CreateRole(context.Background(), "admin", "Editor", []rbac.Permission{{Controller: "Role", Action: "Index"}})
	require.NoError(t, err)

	router, _ := newRolesRouter(t, service)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/roles/1/edit", nil))

	require.Equal(t, http.StatusOK, res.Code)
	body := res.Body.String()
	require.Contains(t, body, `value="Editor"`)
	require.Contains(t, body, `value="Role|Index" checked`)
	require.Contains(t, body, `value="Role|Delete"`)
	require.NotContains(t, body, `value="Role|Delete" checked`)
}

func TestRoleEditUnknownIDIs404(t *testing.T) {
	router, _ := newRolesRouter(t, newFakeService())
	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/roles/99/edit", nil))
	require.Equal(t, http.StatusNotFound, res.Code)
}

func TestRoleDeleteRespondsJSONBool(t *testing.T) {
	service := newFakeService()
	_, err := service.CreateRole(context.Background(), "admin", "Editor", nil)
	require.NoError(t, err)

	router, _ := newRolesRouter(t, service)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/roles/1/delete", nil))
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, "true\n", res.Body.String())

	res = httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/roles/1/delete", nil))
	require.Equal(t, http.StatusNotFound, res.Code)
	require.Equal(t, "false\n", res.Body.String())
}

package access_test

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

	"github.com/gatehouse-app/gatehouse/internal/access"
	"github.com/gatehouse-app/gatehouse/internal/rbac"
	"github.com/gatehouse-app/gatehouse/internal/shared"
	"github.com/gatehouse-app/gatehouse/internal/view"
	_ "github.com/gatehouse-app/gatehouse/testing"
)

type fakeService struct {
	users       map[int64]rbac.UserAccess
	roles       []rbac.Role
	lastUserID  int64
	lastRoleIDs []int64
}

func (f *fakeService) ListUserAccess(ctx context.Context) ([]rbac.UserAccess, error) {
	out := make([]rbac.UserAccess, 0, len(f.users))
	for _, user := range f.users {
		out = append(out, user)
	}
	return out, nil
}

func (f *fakeService) GetUserAccess(ctx context.Context, userID int64) (rbac.UserAccess, error) {
	user, ok := f.users[userID]
	if !ok {
		return rbac.UserAccess{}, shared.ErrNotFound
	}
	return user, nil
}

func (f *fakeService) ListRoles(ctx context.Context) ([]rbac.Role, error) {
	return f.roles, nil
}

func (f *fakeService) AssignRolesToUser(ctx context.Context, actor string, userID int64, roleIDs []int64) error {
	if _, ok := f.users[userID]; !ok {
		return shared.ErrNotFound
	}
	f.lastUserID = userID
	f.lastRoleIDs = roleIDs
	return nil
}

type allowAll struct{}

func (allowAll) IsAuthorized(ctx context.Context, username, controller, action string) (bool, error) {
	return true, nil
}

func newAccessRouter(t *testing.T, service access.Service) *chi.Mux {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(redisClient, "test_session", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")
	templates, err := view.NewEngine()
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gate := rbac.Gate{Authorizer: allowAll{}, Logger: logger}
	handler := access.NewHandler(logger, service, templates, csrfManager, gate, allowAll{})

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := sessionManager.Load(r.Context(), r)
			require.NoError(t, err)
			sess.SetUser("admin")
			next.ServeHTTP(w, r.WithContext(shared.ContextWithSession(r.Context(), sess)))
		})
	})
	router.Route("/access", handler.MountRoutes)
	return router
}

func TestAccessListShowsUsersAndRoles(t *testing.T) {
	service := &fakeService{users: map[int64]rbac.UserAccess{
		7: {UserID: 7, UserName: "bob", Roles: []string{"Editor", "Viewer"}},
	}}
	router := newAccessRouter(t, service)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/access", nil))

	require.Equal(t, http.StatusOK, res.Code)
	body := res.Body.String()
	require.Contains(t, body, "bob")
	require.Contains(t, body, "Editor, Viewer")
}

func TestAccessEditFormChecksAssignedRoles(t *testing.T) {
	service := &fakeService{
		users: map[int64]rbac.UserAccess{7: {UserID: 7, UserName: "bob", Roles: []string{"Editor"}}},
		roles: []rbac.Role{{ID: 1, Name: "Editor"}, {ID: 2, Name: "Viewer"}},
	}
	router := newAccessRouter(t, service)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/access/7/edit", nil))

	require.Equal(t, http.StatusOK, res.Code)
	body := res.Body.String()
	require.Contains(t, body, `value="1" checked`)
	require.Contains(t, body, `value="2"`)
	require.NotContains(t, body, `value="2" checked`)
}

func TestAccessUpdateReplacesMembership(t *testing.T) {
	service := &fakeService{
		users: map[int64]rbac.UserAccess{7: {UserID: 7, UserName: "bob"}},
		roles: []rbac.Role{{ID: 1, Name: "Editor"}, {ID: 2, Name: "Viewer"}},
	}
	router := newAccessRouter(t, service)

	form := url.Values{}
	form.Add("roles", "1")
	form.Add("roles", "2")

	req := httptest.NewRequest(http.MethodPost, "/access/7", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	require.Equal(t, http.StatusSeeOther, res.Code)
	require.Equal(t, "/access", res.Header().Get("Location"))
	require.Equal(t, int64(7), service.lastUserID)
	require.Equal(t, []int64{1, 2}, service.lastRoleIDs)
}

func TestAccessUpdateWithNoBoxesClearsRoles(t *testing.T) {
	service := &fakeService{users: map[int64]rbac.UserAccess{7: {UserID: 7, UserName: "bob", Roles: []string{"Editor"}}}}
	router := newAccessRouter(t, service)

	req := httptest.NewRequest(http.MethodPost, "/access/7", strings.NewReader(""))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	require.Equal(t, http.StatusSeeOther, res.Code)
	require.Equal(t, int64(7), service.lastUserID)
	require.Empty(t, service.lastRoleIDs)
}

func TestAccessUpdateUnknownUserIs404(t *testing.T) {
	service := &fakeService{users: map[int64]rbac.UserAccess{}}
	router := newAccessRouter(t, service)

	req := httptest.NewRequest(http.MethodPost, "/access/99", strings.NewReader("roles=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	require.Equal(t, http.StatusNotFound, res.Code)
}

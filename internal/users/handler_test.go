package users

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mealdesk/mealdesk/internal/authz"
	"github.com/mealdesk/mealdesk/internal/shared"
)

type mockUserRepo struct {
	users map[int64]User
}

func (m *mockUserRepo) ListUsers(ctx context.Context, limit, offset int) ([]User, error) {
	out := make([]User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockUserRepo) CountUsers(ctx context.Context) (int, error) {
	return len(m.users), nil
}

func (m *mockUserRepo) GetUser(ctx context.Context, id int64) (User, error) {
	u, ok := m.users[id]
	if !ok {
		return User{}, shared.ErrNotFound
	}
	return u, nil
}

func (m *mockUserRepo) SetActive(ctx context.Context, id int64, active bool) error {
	u, ok := m.users[id]
	if !ok {
		return shared.ErrNotFound
	}
	u.IsActive = active
	m.users[id] = u
	return nil
}

type stubRoleLister struct {
	grants map[int64][]authz.RoleGrant
}

func (s *stubRoleLister) RolesForUser(ctx context.Context, userID int64) ([]authz.RoleGrant, error) {
	return s.grants[userID], nil
}

func (s *stubRoleLister) AllRoles(ctx context.Context) ([]authz.RoleGrant, error) {
	var all []authz.RoleGrant
	for _, grants := range s.grants {
		all = append(all, grants...)
	}
	return all, nil
}

func newUsersEnv(t *testing.T) (*chi.Mux, *mockUserRepo) {
	t.Helper()
	repo := &mockUserRepo{users: map[int64]User{
		7:   {ID: 7, Email: "chef@mealdesk.local", Name: "Chef", IsActive: true},
		100: {ID: 100, Email: "admin@mealdesk.local", Name: "Admin", IsActive: true},
	}}
	roles := &stubRoleLister{grants: map[int64][]authz.RoleGrant{
		7:   {{Name: "CHEF", Permissions: []string{"production.view"}}},
		100: {{Name: "ADMIN", Permissions: []string{"users.view", "users.edit"}}},
	}}

	registry := authz.DefaultRegistry()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	guard := authz.Guard{Builder: authz.NewBuilder(roles), Registry: registry, Logger: logger}
	handler := NewHandler(logger, NewService(repo, roles), guard)

	mux := chi.NewRouter()
	mux.Route("/users", handler.MountRoutes)
	return mux, repo
}

func doAs(t *testing.T, mux *chi.Mux, method, target, body, userID string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if userID != "" {
		sess := &shared.Session{}
		sess.SetUser(userID, nil)
		req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestListUsersRequiresViewPermission(t *testing.T) {
	mux, _ := newUsersEnv(t)

	rec := doAs(t, mux, http.MethodGet, "/users/", "", "7")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doAs(t, mux, http.MethodGet, "/users/", "", "100")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListUsersPaginates(t *testing.T) {
	mux, _ := newUsersEnv(t)

	rec := doAs(t, mux, http.MethodGet, "/users/?page=1&per_page=1", "", "100")
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Items      []struct{ Email string } `json:"items"`
		Page       int                      `json:"page"`
		PerPage    int                      `json:"per_page"`
		Total      int                      `json:"total"`
		TotalPages int                      `json:"total_pages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Len(t, out.Items, 1)
	assert.Equal(t, 1, out.Page)
	assert.Equal(t, 2, out.Total)
	assert.Equal(t, 2, out.TotalPages)
}

func TestGetUserRoles(t *testing.T) {
	mux, _ := newUsersEnv(t)

	rec := doAs(t, mux, http.MethodGet, "/users/7/roles", "", "100")
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		UserID int64 `json:"user_id"`
		Roles  []struct {
			Name        string   `json:"name"`
			Permissions []string `json:"permissions"`
		} `json:"roles"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, int64(7), out.UserID)
	require.Len(t, out.Roles, 1)
	assert.Equal(t, "CHEF", out.Roles[0].Name)
}

func TestGetUserNotFound(t *testing.T) {
	mux, _ := newUsersEnv(t)
	rec := doAs(t, mux, http.MethodGet, "/users/999", "", "100")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetActiveRequiresEditPermission(t *testing.T) {
	mux, repo := newUsersEnv(t)

	rec := doAs(t, mux, http.MethodPut, "/users/7/active", `{"active":false}`, "7")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doAs(t, mux, http.MethodPut, "/users/7/active", `{"active":false}`, "100")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, repo.users[7].IsActive)
}

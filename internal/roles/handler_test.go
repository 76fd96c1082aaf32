package roles

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mealdesk/mealdesk/internal/authz"
	"github.com/mealdesk/mealdesk/internal/shared"
)

// handlerEnv mounts the role API with the guard resolving against the very
// service under test, the same shape production wiring has.
type handlerEnv struct {
	mux  *chi.Mux
	repo *mockRepository
	svc  *Service
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()
	repo := newMockRepository()
	registry := authz.DefaultRegistry()
	svc := NewService(repo, registry, nil, nil)

	admin := repo.seed(Role{Name: "ADMIN", System: true, Permissions: []string{"roles.view", "roles.edit", "users.create"}})
	viewer := repo.seed(Role{Name: "AUDITOR", Permissions: []string{"roles.view"}})
	repo.seed(Role{Name: "VOLUNTEER"})
	require.NoError(t, repo.AssignRole(context.Background(), 100, admin.ID))
	require.NoError(t, repo.AssignRole(context.Background(), 200, viewer.ID))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	guard := authz.Guard{
		Builder:  authz.NewBuilder(svc),
		Registry: registry,
		Logger:   logger,
	}
	handler := NewHandler(logger, svc, guard)

	mux := chi.NewRouter()
	mux.Route("/roles", handler.MountRoutes)
	return &handlerEnv{mux: mux, repo: repo, svc: svc}
}

func (e *handlerEnv) do(t *testing.T, method, target, body, userID string) *httptest.ResponseRecorder {
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
	e.mux.ServeHTTP(rec, req)
	return rec
}

func TestListRolesRequiresAuthentication(t *testing.T) {
	env := newHandlerEnv(t)
	rec := env.do(t, http.MethodGet, "/roles/", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListRolesAsViewer(t *testing.T) {
	env := newHandlerEnv(t)
	rec := env.do(t, http.MethodGet, "/roles/", "", "200")
	require.Equal(t, http.StatusOK, rec.Code)

	var out []roleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Len(t, out, 3)
}

func TestMutationsRequireEditPermission(t *testing.T) {
	env := newHandlerEnv(t)
	// AUDITOR can read but not write.
	rec := env.do(t, http.MethodPost, "/roles/", `{"name":"CHEF"}`, "200")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateRoleEndpoint(t *testing.T) {
	env := newHandlerEnv(t)
	rec := env.do(t, http.MethodPost, "/roles/", `{"name":"chef","description":"kitchen"}`, "100")
	require.Equal(t, http.StatusCreated, rec.Code)

	var out roleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "CHEF", out.Name)
}

func TestCreateRoleValidation(t *testing.T) {
	env := newHandlerEnv(t)
	rec := env.do(t, http.MethodPost, "/roles/", `{"name":"x"}`, "100")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetPermissionsEndpointCanonicalizes(t *testing.T) {
	env := newHandlerEnv(t)
	created := env.do(t, http.MethodPost, "/roles/", `{"name":"CHEF"}`, "100")
	require.Equal(t, http.StatusCreated, created.Code)
	var role roleResponse
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &role))

	rec := env.do(t, http.MethodPut, "/roles/"+itoa(role.ID)+"/permissions",
		`{"permissions":["production:view","menus.view"]}`, "100")
	require.Equal(t, http.StatusOK, rec.Code)

	var updated roleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, []string{"production.view", "menus.view"}, updated.Permissions)
}

func TestSetPermissionsRejectsUnknownKey(t *testing.T) {
	env := newHandlerEnv(t)
	created := env.do(t, http.MethodPost, "/roles/", `{"name":"CHEF"}`, "100")
	require.Equal(t, http.StatusCreated, created.Code)
	var role roleResponse
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &role))

	rec := env.do(t, http.MethodPut, "/roles/"+itoa(role.ID)+"/permissions",
		`{"permissions":["finance.typo"]}`, "100")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteRoleInUseConflict(t *testing.T) {
	env := newHandlerEnv(t)
	// AUDITOR is still assigned to user 200.
	auditor, err := env.repo.GetRoleByName(context.Background(), "AUDITOR")
	require.NoError(t, err)

	rec := env.do(t, http.MethodDelete, "/roles/"+itoa(auditor.ID), "", "100")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDeleteSystemRoleConflict(t *testing.T) {
	env := newHandlerEnv(t)
	admin, err := env.repo.GetRoleByName(context.Background(), "ADMIN")
	require.NoError(t, err)

	rec := env.do(t, http.MethodDelete, "/roles/"+itoa(admin.ID), "", "100")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAssignRoleDuplicateConflict(t *testing.T) {
	env := newHandlerEnv(t)
	auditor, err := env.repo.GetRoleByName(context.Background(), "AUDITOR")
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/roles/"+itoa(auditor.ID)+"/assignments", `{"user_id":200}`, "100")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRemoveRoleEndpoint(t *testing.T) {
	env := newHandlerEnv(t)
	auditor, err := env.repo.GetRoleByName(context.Background(), "AUDITOR")
	require.NoError(t, err)

	rec := env.do(t, http.MethodDelete, "/roles/"+itoa(auditor.ID)+"/assignments/200", "", "100")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// User 200 lost roles.view and is now denied.
	rec = env.do(t, http.MethodGet, "/roles/", "", "200")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

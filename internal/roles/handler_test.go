package roles

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/cbes-platform/cbes-api/internal/shared"
)

func newTestRouter(t *testing.T) (*chi.Mux, *Service) {
	t.Helper()
	svc, _, _, _ := newTestService(t)
	h := NewHandler(slog.New(slog.DiscardHandler), svc, validator.New())
	r := chi.NewRouter()
	r.Route("/api/roles", h.MountRoutes)
	return r, svc
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any, actor string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if actor != "" {
		sess := &shared.Session{}
		sess.SetUser(actor)
		req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) (shared.Response, map[string]any) {
	t.Helper()
	var envelope struct {
		Status  int             `json:"status"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	var data map[string]any
	if len(envelope.Data) > 0 && envelope.Data[0] == '{' {
		require.NoError(t, json.Unmarshal(envelope.Data, &data))
	}
	return shared.Response{Status: envelope.Status, Message: envelope.Message}, data
}

func TestCreateRequiresSession(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodPost, "/api/roles", map[string]any{"name": "Ops"}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateReturnsEnvelopeWithStampedFields(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodPost, "/api/roles", map[string]any{
		"name": "Back Office",
		"permissions": []map[string]any{
			{"permissionId": 10, "isChecked": true},
		},
	}, "7")
	require.Equal(t, http.StatusCreated, rec.Code)

	envelope, data := decodeEnvelope(t, rec)
	require.Equal(t, http.StatusCreated, envelope.Status)
	require.Equal(t, "Back Office", data["name"])
	require.Equal(t, float64(7), data["createBy"])
	require.Equal(t, false, data["isDeleted"])
	require.Equal(t, false, data["isPurged"])

	// The create response carries the persisted assignment rows.
	perms, ok := data["permissions"].([]any)
	require.True(t, ok, "create response must include the permissions array")
	require.Len(t, perms, 1)
	row := perms[0].(map[string]any)
	require.Equal(t, float64(10), row["permissionId"])
	require.Equal(t, true, row["isChecked"])
}

func TestCreateRejectsMalformedBody(t *testing.T) {
	router, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/api/roles", bytes.NewBufferString("{not json"))
	sess := &shared.Session{}
	sess.SetUser("7")
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetUnknownRoleIs404(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/api/roles/999", nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetNonNumericIDIs400(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/api/roles/abc", nil, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateUsersUnknownReferenceIs400(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodPost, "/api/roles", map[string]any{"name": "Holder"}, "7")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPut, "/api/roles/1/users", map[string]any{
		"users": []map[string]any{{"userId": 999}},
	}, "7")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRoleLifecycleOverHTTP(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/roles", map[string]any{
		"name": "Reviewer",
		"permissions": []map[string]any{
			{"permissionId": 10, "isChecked": true},
			{"permissionId": 11, "isChecked": false},
		},
	}, "7")
	require.Equal(t, http.StatusCreated, rec.Code)
	_, created := decodeEnvelope(t, rec)
	id := int64(created["id"].(float64))

	// Expanded read carries assignments with permission display names.
	rec = doJSON(t, router, http.MethodGet, "/api/roles/1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var expanded struct {
		Data roleExpandedDTO `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &expanded))
	require.Equal(t, id, expanded.Data.ID)
	require.Len(t, expanded.Data.Permissions, 2)
	require.Equal(t, "cbe.read", expanded.Data.Permissions[0].PermissionName)

	// Reconcile permissions and attach a user.
	rec = doJSON(t, router, http.MethodPut, "/api/roles/1", map[string]any{
		"permissions": []map[string]any{{"permissionId": 11, "isChecked": true}},
	}, "8")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPut, "/api/roles/1/users", map[string]any{
		"users": []map[string]any{{"userId": 20}},
	}, "8")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &expanded))
	require.Len(t, expanded.Data.Users, 1)
	require.Equal(t, "somchai", expanded.Data.Users[0].Username)

	// Purge before binning must behave as a miss.
	rec = doJSON(t, router, http.MethodDelete, "/api/roles/bin/1", nil, "8")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/api/roles/1", nil, "8")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/roles/bin", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPut, "/api/roles/bin/1/restore", nil, "8")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/api/roles/1", nil, "8")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, router, http.MethodDelete, "/api/roles/bin/1", nil, "8")
	require.Equal(t, http.StatusOK, rec.Code)

	// Purged roles are gone from every surface.
	rec = doJSON(t, router, http.MethodGet, "/api/roles/1", nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	rec = doJSON(t, router, http.MethodPut, "/api/roles/bin/1/restore", nil, "8")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

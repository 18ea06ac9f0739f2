package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/cbes-platform/cbes-api/internal/shared"
	"github.com/cbes-platform/cbes-api/internal/users"
)

type fakeCredentials struct {
	byUsername map[string]users.User
}

func (f *fakeCredentials) GetByUsername(ctx context.Context, username string) (users.User, error) {
	u, ok := f.byUsername[username]
	if !ok {
		return users.User{}, users.ErrUserNotFound
	}
	return u, nil
}

type recordingRepo struct {
	created []SessionRecord
	deleted []string
}

func (r *recordingRepo) CreateSession(ctx context.Context, rec SessionRecord) error {
	r.created = append(r.created, rec)
	return nil
}

func (r *recordingRepo) DeleteSession(ctx context.Context, id string) error {
	r.deleted = append(r.deleted, id)
	return nil
}

func newAuthRouter(t *testing.T) (http.Handler, *recordingRepo, *shared.SessionManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	sessions := shared.NewSessionManager(client, "cbes_session", "test-secret", time.Hour, false)

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	creds := &fakeCredentials{byUsername: map[string]users.User{
		"somchai": {ID: 7, Fullname: "Somchai P.", Username: "somchai", PasswordHash: string(hash)},
	}}
	repo := &recordingRepo{}
	h := NewHandler(slog.New(slog.DiscardHandler), NewService(creds, repo), sessions, validator.New())

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			sess, err := sessions.Load(req.Context(), req)
			require.NoError(t, err)
			ctx := shared.ContextWithSession(req.Context(), sess)
			next.ServeHTTP(w, req.WithContext(ctx))
			require.NoError(t, sessions.Commit(req.Context(), w, req, sess))
		})
	})
	r.Route("/auth", h.MountRoutes)
	return r, repo, sessions
}

func postLogin(t *testing.T, router http.Handler, username, password string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestLoginIssuesSessionCookieAndAuditRecord(t *testing.T) {
	router, repo, _ := newAuthRouter(t)

	rec := postLogin(t, router, "somchai", "s3cret")
	require.Equal(t, http.StatusOK, rec.Code)

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	require.Equal(t, "cbes_session", cookies[0].Name)
	require.NotEmpty(t, cookies[0].Value)

	require.Len(t, repo.created, 1)
	require.Equal(t, int64(7), repo.created[0].UserID)

	var envelope struct {
		Data principalDTO `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Equal(t, "somchai", envelope.Data.Username)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	router, repo, _ := newAuthRouter(t)

	wrongPassword := postLogin(t, router, "somchai", "nope")
	unknownUser := postLogin(t, router, "ghost", "s3cret")

	require.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	require.Equal(t, http.StatusUnauthorized, unknownUser.Code)
	require.JSONEq(t, wrongPassword.Body.String(), unknownUser.Body.String())
	require.Empty(t, repo.created)
}

func TestLoginRejectsMissingFields(t *testing.T) {
	router, _, _ := newAuthRouter(t)
	rec := postLogin(t, router, "somchai", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionSurvivesAcrossRequests(t *testing.T) {
	router, _, _ := newAuthRouter(t)

	login := postLogin(t, router, "somchai", "s3cret")
	require.Equal(t, http.StatusOK, login.Code)
	cookie := login.Result().Cookies()[0]

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Data map[string]int64 `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Equal(t, int64(7), envelope.Data["id"])
}

func TestLogoutDestroysSession(t *testing.T) {
	router, repo, _ := newAuthRouter(t)

	login := postLogin(t, router, "somchai", "s3cret")
	cookie := login.Result().Cookies()[0]

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, repo.deleted, cookie.Value)

	// The old cookie no longer authenticates.
	req = httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMeWithoutSessionIsUnauthorized(t *testing.T) {
	router, _, _ := newAuthRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

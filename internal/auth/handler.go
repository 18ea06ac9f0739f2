package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/cbes-platform/cbes-api/internal/shared"
)

// Handler serves authentication endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	sessions *shared.SessionManager
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, sessions: sessions, validate: validate}
}

// MountRoutes registers auth routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.login)
	r.Post("/logout", h.logout)
	r.Get("/me", h.me)
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type principalDTO struct {
	ID       int64  `json:"id"`
	Fullname string `json:"fullname"`
	Username string `json:"username"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		shared.RespondJSON(w, http.StatusInternalServerError, "session unavailable", nil)
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.RespondJSON(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		shared.RespondJSON(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	user, err := h.service.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			shared.RespondJSON(w, http.StatusUnauthorized, "invalid credentials", nil)
			return
		}
		shared.RespondError(w, h.logger, err)
		return
	}

	sess.SetUser(strconv.FormatInt(user.ID, 10))
	err = h.service.RegisterSession(r.Context(), SessionRecord{
		ID:        sess.ID,
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(h.sessions.TTL()),
		IP:        r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		h.logger.Warn("session registration failed", "user_id", user.ID, "error", err)
	}

	shared.RespondJSON(w, http.StatusOK, "success", principalDTO{
		ID:       user.ID,
		Fullname: user.Fullname,
		Username: user.Username,
	})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("session removal failed", "error", err)
		}
		h.sessions.Destroy(sess)
	}
	shared.RespondJSON(w, http.StatusOK, "signed out", nil)
}

// me reports the signed-in principal, letting clients bootstrap from a
// surviving cookie without replaying credentials.
func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	actorID, err := shared.ActorID(r.Context())
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, "success", map[string]int64{"id": actorID})
}

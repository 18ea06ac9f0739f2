package users

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cbes-platform/cbes-api/internal/shared"
)

// Handler serves the user directory endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
}

type userDTO struct {
	ID         int64     `json:"id"`
	Fullname   string    `json:"fullname"`
	Username   string    `json:"username"`
	CreateBy   int64     `json:"createBy"`
	CreateDate time.Time `json:"createDate"`
	UpdateBy   int64     `json:"updateBy"`
	UpdateDate time.Time `json:"updateDate"`
}

type userListDTO struct {
	Users []userDTO         `json:"users"`
	Meta  shared.Pagination `json:"meta"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("perPage"))
	meta := shared.NewPagination(page, perPage, len(list))

	// Paginate after collation so every page keeps the Thai ordering.
	start := (meta.Page - 1) * meta.PerPage
	if start > len(list) {
		start = len(list)
	}
	end := start + meta.PerPage
	if end > len(list) {
		end = len(list)
	}

	out := make([]userDTO, 0, end-start)
	for _, u := range list[start:end] {
		out = append(out, userDTO{
			ID:         u.ID,
			Fullname:   u.Fullname,
			Username:   u.Username,
			CreateBy:   u.CreatedBy,
			CreateDate: u.CreatedAt,
			UpdateBy:   u.UpdatedBy,
			UpdateDate: u.UpdatedAt,
		})
	}
	shared.RespondJSON(w, http.StatusOK, "success", userListDTO{Users: out, Meta: meta})
}

package cbes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/cbes-platform/cbes-api/internal/shared"
)

// Handler serves the CBE endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers CBE routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/bin", h.listBin)
	r.Get("/{id}", h.get)
	r.Post("/", h.create)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.remove)
	r.Put("/bin/{id}/restore", h.restore)
	r.Delete("/bin/{id}", h.purge)
}

type cbeDTO struct {
	ID         int64     `json:"id"`
	ThaiName   string    `json:"thaiName"`
	EngName    string    `json:"engName"`
	ShortName  string    `json:"shortName"`
	Detail     string    `json:"detail"`
	CreateBy   int64     `json:"createBy"`
	CreateDate time.Time `json:"createDate"`
	UpdateBy   int64     `json:"updateBy"`
	UpdateDate time.Time `json:"updateDate"`
	IsDeleted  bool      `json:"isDeleted"`
	IsPurged   bool      `json:"isPurged"`
}

type createCBERequest struct {
	ThaiName  string `json:"thaiName" validate:"required,max=255"`
	EngName   string `json:"engName" validate:"max=255"`
	ShortName string `json:"shortName" validate:"max=64"`
	Detail    string `json:"detail"`
}

type updateCBERequest struct {
	ThaiName  *string `json:"thaiName" validate:"omitempty,max=255"`
	EngName   *string `json:"engName" validate:"omitempty,max=255"`
	ShortName *string `json:"shortName" validate:"omitempty,max=64"`
	Detail    *string `json:"detail"`
}

func toCBEDTO(c CBE) cbeDTO {
	return cbeDTO{
		ID:         c.ID,
		ThaiName:   c.ThaiName,
		EngName:    c.EngName,
		ShortName:  c.ShortName,
		Detail:     c.Detail,
		CreateBy:   c.CreatedBy,
		CreateDate: c.CreatedAt,
		UpdateBy:   c.UpdatedBy,
		UpdateDate: c.UpdatedAt,
		IsDeleted:  c.Deleted,
		IsPurged:   c.Purged,
	}
}

func toCBEDTOs(list []CBE) []cbeDTO {
	out := make([]cbeDTO, 0, len(list))
	for _, c := range list {
		out = append(out, toCBEDTO(c))
	}
	return out
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListActive(r.Context())
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, "success", toCBEDTOs(list))
}

func (h *Handler) listBin(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListBin(r.Context())
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, "success", toCBEDTOs(list))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	c, err := h.service.Get(r.Context(), id)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, "success", toCBEDTO(c))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actorID, err := shared.ActorID(r.Context())
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	var req createCBERequest
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.service.Create(r.Context(), CreateInput{
		ThaiName:  req.ThaiName,
		EngName:   req.EngName,
		ShortName: req.ShortName,
		Detail:    req.Detail,
		ActorID:   actorID,
	})
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	shared.RespondJSON(w, http.StatusCreated, "created", toCBEDTO(c))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	actorID, err := shared.ActorID(r.Context())
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	var req updateCBERequest
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.service.Update(r.Context(), UpdateInput{
		ID:        id,
		ThaiName:  req.ThaiName,
		EngName:   req.EngName,
		ShortName: req.ShortName,
		Detail:    req.Detail,
		ActorID:   actorID,
	})
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, "updated", toCBEDTO(c))
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.service.Delete, "deleted")
}

func (h *Handler) restore(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.service.Restore, "restored")
}

func (h *Handler) purge(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.service.Purge, "purged")
}

func (h *Handler) lifecycle(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id, actorID int64) error, message string) {
	actorID, err := shared.ActorID(r.Context())
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	if err := op(r.Context(), id, actorID); err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, message, nil)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		shared.RespondJSON(w, http.StatusBadRequest, "invalid request body", nil)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		shared.RespondJSON(w, http.StatusBadRequest, err.Error(), nil)
		return false
	}
	return true
}

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("cbes: id %q: %w", raw, shared.ErrInvalidReference)
	}
	return id, nil
}

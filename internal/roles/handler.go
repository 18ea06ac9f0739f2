package roles

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

// Handler serves the role aggregate endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/bin", h.listBin)
	r.Get("/{id}", h.get)
	r.Post("/", h.create)
	r.Put("/{id}", h.update)
	r.Put("/{id}/users", h.updateUsers)
	r.Delete("/{id}", h.remove)
	r.Put("/bin/{id}/restore", h.restore)
	r.Delete("/bin/{id}", h.purge)
}

type roleDTO struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	CreateBy   int64     `json:"createBy"`
	CreateDate time.Time `json:"createDate"`
	UpdateBy   int64     `json:"updateBy"`
	UpdateDate time.Time `json:"updateDate"`
	IsDeleted  bool      `json:"isDeleted"`
	IsPurged   bool      `json:"isPurged"`
}

type rolePermissionDTO struct {
	ID             int64  `json:"id"`
	PermissionID   int64  `json:"permissionId"`
	PermissionName string `json:"permissionName"`
	IsChecked      bool   `json:"isChecked"`
}

type roleUserDTO struct {
	ID       int64  `json:"id"`
	UserID   int64  `json:"userId"`
	Fullname string `json:"fullname"`
	Username string `json:"username"`
}

type roleExpandedDTO struct {
	roleDTO
	Permissions []rolePermissionDTO `json:"permissions"`
	Users       []roleUserDTO       `json:"users"`
}

type permissionSelectionRequest struct {
	PermissionID int64 `json:"permissionId" validate:"required,gt=0"`
	IsChecked    bool  `json:"isChecked"`
}

type userSelectionRequest struct {
	UserID    int64 `json:"userId" validate:"required,gt=0"`
	IsDeleted bool  `json:"isDeleted"`
}

type createRoleRequest struct {
	Name        string                       `json:"name" validate:"required,max=120"`
	Permissions []permissionSelectionRequest `json:"permissions" validate:"dive"`
}

type updateRoleRequest struct {
	Name        *string                      `json:"name" validate:"omitempty,max=120"`
	Permissions []permissionSelectionRequest `json:"permissions" validate:"dive"`
}

type updateRoleUsersRequest struct {
	Users []userSelectionRequest `json:"users" validate:"dive"`
}

func toRoleDTO(r Role) roleDTO {
	return roleDTO{
		ID:         r.ID,
		Name:       r.Name,
		CreateBy:   r.CreatedBy,
		CreateDate: r.CreatedAt,
		UpdateBy:   r.UpdatedBy,
		UpdateDate: r.UpdatedAt,
		IsDeleted:  r.Deleted,
		IsPurged:   r.Purged,
	}
}

func toRoleExpandedDTO(e RoleExpanded) roleExpandedDTO {
	dto := roleExpandedDTO{
		roleDTO:     toRoleDTO(e.Role),
		Permissions: make([]rolePermissionDTO, 0, len(e.Permissions)),
		Users:       make([]roleUserDTO, 0, len(e.Users)),
	}
	for _, p := range e.Permissions {
		dto.Permissions = append(dto.Permissions, rolePermissionDTO{
			ID:             p.ID,
			PermissionID:   p.PermissionID,
			PermissionName: p.PermissionName,
			IsChecked:      p.Checked,
		})
	}
	for _, u := range e.Users {
		dto.Users = append(dto.Users, roleUserDTO{
			ID:       u.ID,
			UserID:   u.UserID,
			Fullname: u.UserFullname,
			Username: u.UserUsername,
		})
	}
	return dto
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListActive(r.Context())
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, "success", toRoleDTOs(roles))
}

func (h *Handler) listBin(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListBin(r.Context())
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, "success", toRoleDTOs(roles))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	expanded, err := h.service.GetExpanded(r.Context(), id)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, "success", toRoleExpandedDTO(expanded))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actorID, err := shared.ActorID(r.Context())
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	var req createRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	expanded, err := h.service.Create(r.Context(), CreateRoleInput{
		Name:        req.Name,
		Permissions: toPermissionSelections(req.Permissions),
		ActorID:     actorID,
	})
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	shared.RespondJSON(w, http.StatusCreated, "created", toRoleExpandedDTO(expanded))
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
	var req updateRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	expanded, err := h.service.UpdatePermissions(r.Context(), UpdatePermissionsInput{
		RoleID:      id,
		Name:        req.Name,
		Permissions: toPermissionSelections(req.Permissions),
		ActorID:     actorID,
	})
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, "updated", toRoleExpandedDTO(expanded))
}

func (h *Handler) updateUsers(w http.ResponseWriter, r *http.Request) {
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
	var req updateRoleUsersRequest
	if !h.decode(w, r, &req) {
		return
	}
	users := make([]UserSelection, 0, len(req.Users))
	for _, u := range req.Users {
		users = append(users, UserSelection{UserID: u.UserID, Deleted: u.IsDeleted})
	}
	expanded, err := h.service.UpdateUsers(r.Context(), UpdateUsersInput{
		RoleID:  id,
		Users:   users,
		ActorID: actorID,
	})
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, "updated", toRoleExpandedDTO(expanded))
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

func (h *Handler) lifecycle(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, roleID, actorID int64) error, message string) {
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

// decode unmarshals and validates the request body, writing the error
// response itself when the payload is unusable.
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

func toRoleDTOs(roles []Role) []roleDTO {
	out := make([]roleDTO, 0, len(roles))
	for _, r := range roles {
		out = append(out, toRoleDTO(r))
	}
	return out
}

func toPermissionSelections(reqs []permissionSelectionRequest) []PermissionSelection {
	out := make([]PermissionSelection, 0, len(reqs))
	for _, p := range reqs {
		out = append(out, PermissionSelection{PermissionID: p.PermissionID, Checked: p.IsChecked})
	}
	return out
}

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("roles: id %q: %w", raw, shared.ErrInvalidReference)
	}
	return id, nil
}

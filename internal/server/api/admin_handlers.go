package api

import (
	"net/http"

	"cloudprime/internal/server/service"

	"github.com/labstack/echo/v4"
)

func actor(c echo.Context) service.Actor {
	return service.Actor{
		AdminID:   currentUser(c).ID,
		IPAddress: c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}
}

// HandleAdminStats handles GET /api/admin/stats.
func (h *Handler) HandleAdminStats(c echo.Context) error {
	stats, err := h.admin.Stats(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, stats)
}

// HandleAdminUsers handles GET /api/admin/users.
func (h *Handler) HandleAdminUsers(c echo.Context) error {
	page, err := h.admin.ListUsers(c.Request().Context(), pageRequest(c))
	if err != nil {
		return respondError(c, err)
	}
	return respondList(c, page)
}

// HandleAdminUploads handles GET /api/admin/uploads.
func (h *Handler) HandleAdminUploads(c echo.Context) error {
	page, err := h.admin.ListUploads(c.Request().Context(), pageRequest(c))
	if err != nil {
		return respondError(c, err)
	}
	return respondList(c, page)
}

// HandleAdminKeys handles GET /api/admin/api-keys.
func (h *Handler) HandleAdminKeys(c echo.Context) error {
	page, err := h.admin.ListAPIKeys(c.Request().Context(), pageRequest(c))
	if err != nil {
		return respondError(c, err)
	}
	return respondList(c, page)
}

// HandleAdminContacts handles GET /api/admin/contacts.
func (h *Handler) HandleAdminContacts(c echo.Context) error {
	page, err := h.admin.ListContacts(c.Request().Context(), pageRequest(c))
	if err != nil {
		return respondError(c, err)
	}
	return respondList(c, page)
}

// HandleAdminLogs handles GET /api/admin/logs.
func (h *Handler) HandleAdminLogs(c echo.Context) error {
	page, err := h.admin.ListLogs(c.Request().Context(), pageRequest(c))
	if err != nil {
		return respondError(c, err)
	}
	return respondList(c, page)
}

type roleRequest struct {
	Role string `json:"role"`
}

// HandleUpdateRole handles PUT /api/admin/users/:id/role.
func (h *Handler) HandleUpdateRole(c echo.Context) error {
	id, err := pathID(c, service.ErrUserNotFound)
	if err != nil {
		return respondError(c, err)
	}
	var req roleRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	user, err := h.admin.UpdateRole(c.Request().Context(), actor(c), id, req.Role)
	if err != nil {
		return respondError(c, err)
	}
	return respondMessage(c, http.StatusOK, "User role updated successfully", service.NewUserView(user))
}

// HandleDeleteUser handles DELETE /api/admin/users/:id.
func (h *Handler) HandleDeleteUser(c echo.Context) error {
	id, err := pathID(c, service.ErrUserNotFound)
	if err != nil {
		return respondError(c, err)
	}

	if err := h.admin.DeleteUser(c.Request().Context(), actor(c), id); err != nil {
		return respondError(c, err)
	}
	return respondMessage(c, http.StatusOK, "User deleted successfully", nil)
}

// HandleAdminDeleteUpload handles DELETE /api/admin/uploads/:id.
func (h *Handler) HandleAdminDeleteUpload(c echo.Context) error {
	id, err := pathID(c, service.ErrUploadNotFound)
	if err != nil {
		return respondError(c, err)
	}

	if err := h.admin.DeleteUpload(c.Request().Context(), actor(c), id); err != nil {
		return respondError(c, err)
	}
	return respondMessage(c, http.StatusOK, "Upload deleted successfully", nil)
}

type statusRequest struct {
	Status string `json:"status"`
}

// HandleUpdateContactStatus handles PUT /api/admin/contacts/:id/status.
func (h *Handler) HandleUpdateContactStatus(c echo.Context) error {
	id, err := pathID(c, service.ErrContactNotFound)
	if err != nil {
		return respondError(c, err)
	}
	var req statusRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	contact, err := h.admin.UpdateContactStatus(c.Request().Context(), actor(c), id, req.Status)
	if err != nil {
		return respondError(c, err)
	}
	return respondMessage(c, http.StatusOK, "Contact status updated", service.NewContactView(contact))
}

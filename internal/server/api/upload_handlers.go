package api

import (
	"net/http"

	"cloudprime/internal/server/service"

	"github.com/labstack/echo/v4"
)

const uploadField = "file"

// stageForm copies the multipart "file" field into the staging area.
func (h *Handler) stageForm(c echo.Context) (*service.Staged, error) {
	fileHeader, err := c.FormFile(uploadField)
	if err != nil {
		return nil, service.ErrNoFileProvided
	}

	src, err := fileHeader.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	return h.uploads.Stage(uploadField, fileHeader.Filename, fileHeader.Header.Get(echo.HeaderContentType), src)
}

// HandleUpload handles POST /api/uploads/upload-image.
// Accepts a multipart form with a "file" field from a signed-in user.
func (h *Handler) HandleUpload(c echo.Context) error {
	staged, err := h.stageForm(c)
	if err != nil {
		return respondError(c, err)
	}

	view, err := h.uploads.UploadFromDashboard(c.Request().Context(), currentUser(c).ID, staged)
	if err != nil {
		return respondError(c, err)
	}
	return respondMessage(c, http.StatusCreated, "File uploaded successfully", view)
}

// HandleAPIUpload handles POST /api/v1/upload-image, authenticated by API key.
func (h *Handler) HandleAPIUpload(c echo.Context) error {
	staged, err := h.stageForm(c)
	if err != nil {
		return respondError(c, err)
	}

	view, err := h.uploads.UploadWithAPIKey(c.Request().Context(), currentKey(c), staged)
	if err != nil {
		return respondError(c, err)
	}
	return respondMessage(c, http.StatusCreated, "File uploaded successfully", view)
}

// HandleListUploads handles GET /api/uploads.
func (h *Handler) HandleListUploads(c echo.Context) error {
	page, err := h.uploads.List(c.Request().Context(), currentUser(c).ID, pageRequest(c))
	if err != nil {
		return respondError(c, err)
	}
	return respondList(c, page)
}

// HandleDeleteUpload handles DELETE /api/uploads/:id.
func (h *Handler) HandleDeleteUpload(c echo.Context) error {
	id, err := pathID(c, service.ErrUploadNotFound)
	if err != nil {
		return respondError(c, err)
	}

	if err := h.uploads.Delete(c.Request().Context(), currentUser(c).ID, id); err != nil {
		return respondError(c, err)
	}
	return respondMessage(c, http.StatusOK, "Upload deleted successfully", nil)
}

package api

import (
	"net/http"

	"cloudprime/internal/server/service"

	"github.com/labstack/echo/v4"
)

type keyRequest struct {
	Name string `json:"name"`
}

// HandleCreateKey handles POST /api/api-keys.
func (h *Handler) HandleCreateKey(c echo.Context) error {
	var req keyRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	key, err := h.keys.Issue(c.Request().Context(), currentUser(c).ID, req.Name)
	if err != nil {
		return respondError(c, err)
	}
	return respondMessage(c, http.StatusCreated, "API key generated successfully", service.NewKeyView(key))
}

// HandleListKeys handles GET /api/api-keys.
func (h *Handler) HandleListKeys(c echo.Context) error {
	keys, err := h.keys.List(c.Request().Context(), currentUser(c).ID)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, keys)
}

// HandleToggleKey handles PUT /api/api-keys/:id/toggle.
func (h *Handler) HandleToggleKey(c echo.Context) error {
	id, err := pathID(c, service.ErrKeyNotFound)
	if err != nil {
		return respondError(c, err)
	}

	key, err := h.keys.Toggle(c.Request().Context(), currentUser(c).ID, id)
	if err != nil {
		return respondError(c, err)
	}

	msg := "API key deactivated"
	if key.IsActive {
		msg = "API key activated"
	}
	return respondMessage(c, http.StatusOK, msg, service.NewKeyView(key))
}

// HandleDeleteKey handles DELETE /api/api-keys/:id.
func (h *Handler) HandleDeleteKey(c echo.Context) error {
	id, err := pathID(c, service.ErrKeyNotFound)
	if err != nil {
		return respondError(c, err)
	}

	if err := h.keys.Revoke(c.Request().Context(), currentUser(c).ID, id); err != nil {
		return respondError(c, err)
	}
	return respondMessage(c, http.StatusOK, "API key deleted successfully", nil)
}

// HandleKeyStats handles GET /api/api-keys/stats.
func (h *Handler) HandleKeyStats(c echo.Context) error {
	stats, err := h.keys.Stats(c.Request().Context(), currentUser(c).ID)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, stats)
}

// HandleKeyUsage handles GET /api/api-keys/usage, authenticated by API key.
func (h *Handler) HandleKeyUsage(c echo.Context) error {
	usage, err := h.keys.Usage(c.Request().Context(), currentKey(c))
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, usage)
}

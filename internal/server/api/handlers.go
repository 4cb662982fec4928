package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"cloudprime/internal/server/service"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Services are the domain services the handlers call into.
type Services struct {
	Identity *service.IdentityService
	Keys     *service.APIKeyService
	Uploads  *service.UploadService
	Admin    *service.AdminService
	Contact  *service.ContactService
}

// CookieOptions controls the session cookie set on sign-in.
type CookieOptions struct {
	Lifetime time.Duration
	Secure   bool
}

// Handler contains the HTTP handlers for the CloudPrime API.
type Handler struct {
	identity *service.IdentityService
	keys     *service.APIKeyService
	uploads  *service.UploadService
	admin    *service.AdminService
	contact  *service.ContactService
	db       HealthChecker
	cookie   CookieOptions
}

// NewHandler creates a new handler with the given service dependencies.
func NewHandler(svc Services, db HealthChecker, cookie CookieOptions) *Handler {
	return &Handler{
		identity: svc.Identity,
		keys:     svc.Keys,
		uploads:  svc.Uploads,
		admin:    svc.Admin,
		contact:  svc.Contact,
		db:       db,
		cookie:   cookie,
	}
}

// HandleHealth handles GET /health.
// Returns the health status of the server, including database connectivity.
func (h *Handler) HandleHealth(c echo.Context) error {
	status := "healthy"
	dbStatus := "connected"

	if err := h.db.HealthCheck(c.Request().Context()); err != nil {
		status = "degraded"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	return respond(c, http.StatusOK, echo.Map{
		"status":    status,
		"database":  dbStatus,
		"timestamp": time.Now().UTC(),
	})
}

type contactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// HandleContact handles POST /api/contact.
func (h *Handler) HandleContact(c echo.Context) error {
	var req contactRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	contact, err := h.contact.Submit(c.Request().Context(), service.ContactInput{
		Name:      req.Name,
		Email:     req.Email,
		Subject:   req.Subject,
		Message:   req.Message,
		IPAddress: c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	})
	if err != nil {
		return respondError(c, err)
	}

	return respondMessage(c, http.StatusCreated, "Message sent successfully", echo.Map{
		"id":        contact.ID,
		"name":      contact.Name,
		"email":     contact.Email,
		"subject":   contact.Subject,
		"createdAt": contact.CreatedAt,
	})
}

var errBadBody = service.Validation("invalid request body")

func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return errBadBody
	}
	return nil
}

// pathID parses the :id parameter. A malformed id cannot name a record, so
// it is reported as notFound.
func pathID(c echo.Context, notFound error) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, notFound
	}
	return id, nil
}

// pageRequest reads the page and limit query parameters. Missing or
// malformed values fall back to the defaults.
func pageRequest(c echo.Context) service.PageRequest {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	return service.PageRequest{Page: page, Limit: limit}
}

package api

import (
	"context"
	"fmt"
	"net/http"

	"cloudprime/internal/server/config"
	"cloudprime/internal/server/database"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// multipartOverhead is the body allowance on top of MaxFileSize for the
// multipart framing of an upload.
const multipartOverhead = 1 << 20

// SetupRouter creates and configures the echo router with all routes and middleware.
// authCounter backs the auth route limiter; background goroutines stop with ctx.
func SetupRouter(ctx context.Context, handler *Handler, cfg *config.Config, authCounter WindowCounter) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = httpErrorHandler
	e.Pre(middleware.RemoveTrailingSlash())

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(Metrics())
	e.Use(RequestLogger())
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "SAMEORIGIN",
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization, headerAPIKey},
		AllowCredentials: true,
	}))

	jsonLimit := middleware.BodyLimit("1M")
	uploadLimit := middleware.BodyLimit(fmt.Sprintf("%dB", cfg.MaxFileSize+multipartOverhead))
	uploadLimiter := NewRateLimiter(ctx, cfg.RateLimitRPS, cfg.RateLimitBurst)
	authLimiter := WindowLimit("auth", authCounter, cfg.AuthRateLimit, cfg.AuthRateWindow)
	contactLimiter := WindowLimit("contact", authCounter, cfg.AuthRateLimit, cfg.AuthRateWindow)
	session := handler.RequireSession()
	apiKey := handler.RequireAPIKey()

	// Health & metrics
	e.GET("/health", handler.HandleHealth)
	e.GET("/api/health", handler.HandleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Auth
	auth := e.Group("/api/auth", jsonLimit)
	auth.POST("/register", handler.HandleRegister, authLimiter)
	auth.POST("/verify-otp", handler.HandleVerifyOTP, authLimiter)
	auth.POST("/resend-otp", handler.HandleResendOTP, authLimiter)
	auth.POST("/login", handler.HandleLogin, authLimiter)
	auth.POST("/forgot-password", handler.HandleForgotPassword, authLimiter)
	auth.PUT("/reset-password", handler.HandleResetPassword, authLimiter)
	auth.GET("/me", handler.HandleMe, session)
	auth.PUT("/update-profile", handler.HandleUpdateProfile, session)
	auth.GET("/logout", handler.HandleLogout, session)

	// Dashboard uploads (rate-limited)
	uploads := e.Group("/api/uploads", uploadLimiter.Middleware())
	uploads.POST("/upload-image", handler.HandleUpload, uploadLimit, session)
	uploads.GET("", handler.HandleListUploads, session)
	uploads.DELETE("/:id", handler.HandleDeleteUpload, session)

	// API keys and the key-authenticated upload path
	keys := e.Group("/api", uploadLimiter.Middleware())
	keys.POST("/api-keys", handler.HandleCreateKey, jsonLimit, session)
	keys.GET("/api-keys", handler.HandleListKeys, session)
	keys.GET("/api-keys/stats", handler.HandleKeyStats, session)
	keys.GET("/api-keys/usage", handler.HandleKeyUsage, apiKey)
	keys.PUT("/api-keys/:id/toggle", handler.HandleToggleKey, session)
	keys.DELETE("/api-keys/:id", handler.HandleDeleteKey, session)
	keys.POST("/v1/upload-image", handler.HandleAPIUpload, uploadLimit, apiKey)

	// Admin
	admin := e.Group("/api/admin", jsonLimit, session, RequireRole(database.RoleAdmin))
	admin.GET("/stats", handler.HandleAdminStats)
	admin.GET("/users", handler.HandleAdminUsers)
	admin.PUT("/users/:id/role", handler.HandleUpdateRole)
	admin.DELETE("/users/:id", handler.HandleDeleteUser)
	admin.GET("/uploads", handler.HandleAdminUploads)
	admin.DELETE("/uploads/:id", handler.HandleAdminDeleteUpload)
	admin.GET("/api-keys", handler.HandleAdminKeys)
	admin.GET("/contacts", handler.HandleAdminContacts)
	admin.PUT("/contacts/:id/status", handler.HandleUpdateContactStatus)
	admin.GET("/logs", handler.HandleAdminLogs)

	// Contact
	e.POST("/api/contact", handler.HandleContact, jsonLimit, contactLimiter)

	return e
}

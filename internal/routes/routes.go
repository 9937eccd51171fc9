// Package routes defines HTTP routes for the account service.
package routes

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"github.com/userprod/account-service/docs"
	"github.com/userprod/account-service/internal/config"
	"github.com/userprod/account-service/internal/handlers"
	"github.com/userprod/account-service/internal/metrics"
	"github.com/userprod/account-service/internal/middleware"
	"github.com/userprod/account-service/internal/models"
	"github.com/userprod/account-service/internal/storage"
)

// Handlers groups the HTTP handlers mounted by Setup.
type Handlers struct {
	Auth     *handlers.AuthHandler
	Image    *handlers.ImageHandler
	Transfer *handlers.TransferHandler
	Health   *handlers.HealthHandler
}

// Deps carries the cross-cutting pieces routes are wired with.
type Deps struct {
	Session  gin.HandlerFunc
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Log      zerolog.Logger
}

// Setup configures all HTTP routes for the application.
func Setup(router *gin.Engine, h Handlers, deps Deps, cfg *config.Config) {
	router.HandleMethodNotAllowed = true
	router.Use(
		middleware.RequestLogger(deps.Log),
		middleware.ErrorHandler(deps.Log),
		middleware.Recovery(deps.Log),
		middleware.Security(middleware.DefaultCORSConfig(cfg.AllowedOrigins)),
		deps.Metrics.Middleware(),
	)
	router.NoRoute(middleware.NotFound)
	router.NoMethod(middleware.MethodNotAllowed)

	router.GET("/health", h.Health.Check)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))

	if cfg.Storage.Driver == config.StorageLocal {
		router.Static(strings.TrimSuffix(storage.LocalPrefix, "/"), cfg.Storage.UploadDir)
	}

	session := deps.Session
	admin := middleware.RequireRoles(models.RoleAdmin)
	editors := middleware.RequireRoles(models.RoleAdmin, models.RoleReviewer)

	api := router.Group("/api/v1", middleware.CSRF(cfg.AllowedOrigins))

	auth := api.Group("/auth")
	{
		auth.POST("/register", h.Auth.Register)
		auth.POST("/login", h.Auth.Login)
		auth.POST("/refresh-token", h.Auth.Refresh)
		auth.POST("/forgot-password", h.Auth.RequestPasswordReset)
		auth.POST("/forgot-password/:resetToken", h.Auth.CompletePasswordReset)

		auth.GET("/me", session, h.Auth.Me)
		auth.POST("/user-details", session, h.Auth.UserDetails)
		auth.POST("/logout", session, h.Auth.Logout)
		auth.POST("/reset-password", session, h.Auth.ChangePassword)
		auth.GET("/users", session, h.Auth.ListUsers)
		auth.DELETE("/delete", session, admin, h.Auth.DeleteUser)
		auth.PATCH("/update-user", session, editors, h.Auth.UpdateUser)
		auth.POST("/profile-picture", session, h.Auth.UploadProfilePicture)
		auth.DELETE("/profile-picture", session, h.Auth.DeleteProfilePicture)
		auth.POST("/profile-pic-ad", session, admin, h.Auth.UploadProfilePictureAdmin)
		auth.DELETE("/profile-pic-ad", session, admin, h.Auth.DeleteProfilePictureAdmin)
	}

	image := api.Group("/image")
	{
		image.POST("/upload", session, h.Image.Upload)
		image.GET("/my-images", session, h.Image.ListMine)
		image.DELETE("/delete", session, h.Image.DeleteMine)
		image.DELETE("/images/:imageId", session, h.Image.DeleteOne)
		image.GET("/images/:imageId", h.Image.Download)
	}

	export := api.Group("/export", session)
	{
		export.GET("/export-users", h.Transfer.Export)
		export.POST("/import-users", h.Transfer.Import)
	}

	// Swagger documentation (only if SWAGGER_HOST is configured)
	if cfg.SwaggerHost != "" {
		docs.SwaggerInfo.Host = cfg.SwaggerHost
		router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
}

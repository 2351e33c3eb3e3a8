package handlers

import (
	"reflow_oven/internal/logger"
	"reflow_oven/internal/service"

	"github.com/gin-gonic/gin"

	_ "reflow_oven/docs"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	log      *logger.Logger
}

// NewHandler constructs a new HTTP handler with dependencies.
func NewHandler(services *service.Service, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{services: services, log: log}
}

// InitRoutes builds and returns the Gin router with all routes registered.
// Reads are public so the dashboard can poll them; anything that changes
// oven, profile or run state needs a bearer token.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/health", h.health)

	h.registerAuthRoutes(router)

	api := router.Group("/api/v1")
	h.registerDeviceRoutes(api)
	h.registerProfileRoutes(api)
	h.registerRunRoutes(api)
	h.registerLogRoutes(api)

	// Live status stream (HTTP upgrade), same port
	router.GET("/ws", h.wsConnect)

	return router
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/sign-up", h.signUp)
		auth.POST("/sign-in", h.signIn)
	}
}

func (h *Handler) registerDeviceRoutes(api *gin.RouterGroup) {
	devices := api.Group("/devices")
	{
		devices.GET("", h.listDevices)
		devices.POST("/select", h.operatorMiddleware, h.selectDevice)
		devices.POST("/rescan", h.operatorMiddleware, h.rescanDevices)
	}
}

func (h *Handler) registerProfileRoutes(api *gin.RouterGroup) {
	profiles := api.Group("/profiles")
	{
		profiles.GET("", h.listProfiles)
		profiles.GET("/:id", h.getProfile)
		profiles.POST("", h.operatorMiddleware, h.createProfile)
		profiles.POST("/select", h.operatorMiddleware, h.selectProfile)
		profiles.PUT("/:id", h.operatorMiddleware, h.updateProfile)
		profiles.DELETE("/:id", h.operatorMiddleware, h.deleteProfile)
	}
}

func (h *Handler) registerRunRoutes(api *gin.RouterGroup) {
	run := api.Group("/run")
	{
		run.GET("/status", h.runStatus)
		run.GET("/targets", h.runTargets)
		run.GET("/samples", h.runSamples)
		run.POST("/start", h.operatorMiddleware, h.startRun)
		run.POST("/stop", h.operatorMiddleware, h.stopRun)
		run.POST("/reset", h.operatorMiddleware, h.resetRun)
	}
}

func (h *Handler) registerLogRoutes(api *gin.RouterGroup) {
	api.GET("/logs", h.getLogs)
}

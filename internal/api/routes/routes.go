package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wardenproxy/warden/internal/api/handlers"
	"github.com/wardenproxy/warden/internal/api/middleware"
	"github.com/wardenproxy/warden/internal/policy"
	"github.com/wardenproxy/warden/internal/services"
)

// Deps carries the wired components the routes need.
type Deps struct {
	Verifier  *policy.IdentityVerifier
	Gate      *middleware.Gate
	Registry  *prometheus.Registry
	Auth      *services.AuthService
	Endpoints *services.EndpointService
	Groups    *services.GroupService
	Calls     *services.CallService
}

// Register mounts the management API under /shield, the operational
// endpoints, and the policy gate for everything else.
func Register(router *gin.Engine, d Deps) {
	router.GET("/healthz", handlers.Health)
	if d.Registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{})))
	}

	authHandler := handlers.NewAuthHandler(d.Auth)
	endpointHandler := handlers.NewEndpointHandler(d.Endpoints, d.Calls)
	groupHandler := handlers.NewGroupHandler(d.Groups)
	ruleHandler := handlers.NewRuleHandler(d.Groups)
	analyticsHandler := handlers.NewAnalyticsHandler(d.Calls)

	shield := router.Group("/shield")
	shield.POST("/auth/signup", authHandler.Signup)
	shield.POST("/auth/login", authHandler.Login)

	authed := shield.Group("", middleware.AuthMiddleware(d.Verifier))
	authed.GET("/auth/me", authHandler.Me)

	authed.GET("/endpoints", endpointHandler.List)
	authed.POST("/endpoints", endpointHandler.Create)
	authed.GET("/endpoints/:id", endpointHandler.Get)
	authed.PUT("/endpoints/:id", endpointHandler.Update)
	authed.GET("/endpoints/:id/stats", endpointHandler.Stats)
	authed.DELETE("/endpoints/:id", middleware.RequireRole("admin"), endpointHandler.Delete)

	authed.GET("/security-groups", groupHandler.List)
	authed.POST("/security-groups", groupHandler.Create)
	authed.GET("/security-groups/:id", groupHandler.Get)
	authed.PUT("/security-groups/:id", groupHandler.Update)
	authed.DELETE("/security-groups/:id", middleware.RequireRole("admin"), groupHandler.Delete)
	authed.POST("/security-groups/:id/rules/:ruleId", groupHandler.AttachRule)
	authed.DELETE("/security-groups/:id/rules/:ruleId", groupHandler.DetachRule)
	authed.POST("/security-groups/:id/endpoints/:endpointId", groupHandler.AttachEndpoint)
	authed.DELETE("/security-groups/:id/endpoints/:endpointId", groupHandler.DetachEndpoint)

	authed.GET("/rules", ruleHandler.List)
	authed.POST("/rules", ruleHandler.Create)
	authed.PUT("/rules/:id", ruleHandler.Update)
	authed.DELETE("/rules/:id", middleware.RequireRole("admin"), ruleHandler.Delete)

	authed.GET("/analytics/status-codes", analyticsHandler.StatusCodes)

	// Everything that is not a management route goes through the policy
	// gate and on to the backend.
	if d.Gate != nil {
		router.NoRoute(d.Gate.Handle())
	}
}

package handler

import (
	"fmt"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/makkenzo/device-license-service/internal/handler/middleware"
	"github.com/makkenzo/device-license-service/internal/ierr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type RouterDeps struct {
	Health       *HealthHandler
	Licenses     *LicenseHandler
	Activations  *ActivationHandler
	Auth         *AuthHandler
	AuthRequired gin.HandlerFunc
	AllowOrigins []string
	Logger       *zap.Logger
}

func NewRouter(d RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.ClientIP,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	}))
	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logMsg := "Panic recovered"
		if err, ok := recovered.(string); ok {
			logMsg = fmt.Sprintf("%s: %s", logMsg, err)
		} else if err, ok := recovered.(error); ok {
			logMsg = fmt.Sprintf("%s: %v", logMsg, err)
		}
		d.Logger.Error(logMsg, zap.Stack("stack"))

		_ = c.Error(ierr.ErrInternalServer)
		c.Abort()
	}))

	if len(d.AllowOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins: d.AllowOrigins,
			AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders: []string{
				"Origin",
				"Content-Type",
				"Accept",
				"Authorization",
			},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	router.Use(middleware.ErrorHandlerMiddleware(d.Logger))

	router.GET("/healthz", d.Health.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authRoutes := router.Group("/api/v1/auth")
	{
		authRoutes.POST("/login", d.Auth.Login)
	}

	apiV1 := router.Group("/api/v1")
	{
		apiV1.POST("/activate", d.Activations.Activate)

		licenseRoutes := apiV1.Group("/licenses")
		licenseRoutes.Use(d.AuthRequired)
		{
			licenseRoutes.POST("", d.Licenses.Create)
			licenseRoutes.GET("", d.Licenses.List)
			licenseRoutes.GET("/:id", d.Licenses.GetByID)
			licenseRoutes.PATCH("/:id", d.Licenses.Update)
			licenseRoutes.POST("/:id/revoke", d.Licenses.Revoke)
			licenseRoutes.POST("/:id/renew", d.Licenses.Renew)
		}

		activationRoutes := apiV1.Group("/activations")
		activationRoutes.Use(d.AuthRequired)
		{
			activationRoutes.DELETE("/:id", d.Licenses.DeactivateDevice)
		}
	}

	return router
}

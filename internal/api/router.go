package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vitalis-dev/vitalis-store/internal/integrations"
)

// NewRouter builds the HTTP surface around h.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.MaxMultipartMemory = integrations.MaxUploadBytes + 1<<20
	r.Use(requestLogger(h.logger()), gin.Recovery(), cors())

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/entities", h.EntityTypes)
		apiGroup.GET("/entities/:entity", h.List)
		apiGroup.POST("/entities/:entity", h.Create)
		apiGroup.GET("/entities/:entity/:id", h.Get)
		apiGroup.PATCH("/entities/:entity/:id", h.Update)
		apiGroup.PUT("/entities/:entity/:id", h.Update)
		apiGroup.DELETE("/entities/:entity/:id", h.Delete)

		apiGroup.POST("/integrations/upload", h.Upload)
		apiGroup.POST("/integrations/llm", h.InvokeLLM)

		apiGroup.POST("/auth/login", h.Login)
		apiGroup.POST("/auth/logout", h.Logout)
		apiGroup.GET("/auth/me", h.Me)
		apiGroup.GET("/auth/redirect", h.Redirect)
	}

	careGroup := r.Group("/api/care", h.RequireAuth())
	{
		careGroup.POST("/patients", h.RegisterPatient)
		careGroup.POST("/patients/:id/open", h.OpenPatient)
		careGroup.POST("/symptom-checks", h.AnalyzeSymptoms)
		careGroup.POST("/appointments", h.BookAppointment)
		careGroup.GET("/appointments", h.Appointments)
		careGroup.POST("/appointments/:id/reschedule", h.Reschedule)
		careGroup.POST("/appointments/:id/cancel", h.CancelAppointment)
		careGroup.POST("/consultations", h.RequestConsultation)
		careGroup.GET("/dashboard", h.Dashboard)
	}

	r.GET("/files/:name", h.ServeFile)

	r.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.JSON(http.StatusNotFound, gin.H{"error": "API route not found"})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return r
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

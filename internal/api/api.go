// Package api exposes the entity store, the integrations and the care
// workflows over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vitalis-dev/vitalis-store/internal/care"
	"github.com/vitalis-dev/vitalis-store/internal/integrations"
	"github.com/vitalis-dev/vitalis-store/pkg/engine"
)

type Handler struct {
	Store  engine.EntityStore
	Files  *integrations.FileStore
	LLM    integrations.Invoker
	Auth   *integrations.Auth
	Care   *care.Service
	Logger *zap.Logger
	// Clock splits appointments into upcoming and past. Nil means time.Now.
	Clock  func() time.Time
}

func (h *Handler) now() time.Time {
	if h.Clock != nil {
		return h.Clock()
	}
	return time.Now()
}

func (h *Handler) logger() *zap.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return zap.NewNop()
}

// fail writes err with the status its kind maps to.
func (h *Handler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, care.ErrInvalidInput), errors.Is(err, integrations.ErrMissingCredentials):
		status = http.StatusBadRequest
	case errors.Is(err, care.ErrNotFound), errors.Is(err, integrations.ErrFileNotFound):
		status = http.StatusNotFound
	case errors.Is(err, integrations.ErrFileTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, integrations.ErrSchemaMismatch):
		status = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status == http.StatusInternalServerError {
		h.logger().Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (h *Handler) EntityTypes(c *gin.Context) {
	types, err := h.Store.EntityTypes()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, types)
}

func (h *Handler) List(c *gin.Context) {
	opts := engine.ListOptions{Sort: c.Query("sort")}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
			return
		}
		opts.Limit = n
	}

	records, err := h.Store.List(c.Param("entity"), opts)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (h *Handler) Get(c *gin.Context) {
	rec, err := h.Store.Get(c.Param("entity"), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) Create(c *gin.Context) {
	var data engine.Record
	if err := c.ShouldBindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.Store.Create(c.Param("entity"), data)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *Handler) Update(c *gin.Context) {
	var data engine.Record
	if err := c.ShouldBindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.Store.Update(c.Param("entity"), c.Param("id"), data)
	if err != nil {
		h.fail(c, err)
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) Delete(c *gin.Context) {
	if err := h.Store.Delete(c.Param("entity"), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

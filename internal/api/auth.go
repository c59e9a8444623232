package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vitalis-dev/vitalis-store/internal/integrations"
)

func (h *Handler) Login(c *gin.Context) {
	var input struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, err := h.Auth.Login(input.Email, input.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *Handler) Logout(c *gin.Context) {
	h.Auth.Logout()
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *Handler) Me(c *gin.Context) {
	me := h.Auth.Me()
	if me == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not signed in"})
		return
	}
	c.JSON(http.StatusOK, me)
}

func (h *Handler) Redirect(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"url": integrations.RedirectToLogin(c.Query("return"))})
}

// RequireAuth rejects requests without the current bearer token.
func (h *Handler) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || !h.Auth.Validate(token) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":    "unauthorized",
				"redirect": integrations.RedirectToLogin(c.Request.URL.Path),
			})
			return
		}
		c.Next()
	}
}

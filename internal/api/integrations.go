package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vitalis-dev/vitalis-store/internal/integrations"
)

func (h *Handler) Upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field \"file\" is required"})
		return
	}
	if fh.Size > integrations.MaxUploadBytes {
		h.fail(c, integrations.ErrFileTooLarge)
		return
	}

	f, err := fh.Open()
	if err != nil {
		h.fail(c, err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, integrations.MaxUploadBytes+1))
	if err != nil {
		h.fail(c, err)
		return
	}

	up, err := h.Files.UploadFile(c.Request.Context(), integrations.File{Name: fh.Filename, Data: data})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, up)
}

func (h *Handler) ServeFile(c *gin.Context) {
	f, err := h.Files.Open(c.Param("name"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Data(http.StatusOK, f.ContentType, f.Data)
}

func (h *Handler) InvokeLLM(c *gin.Context) {
	var req integrations.LLMRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "prompt is required"})
		return
	}

	out, err := h.LLM.Invoke(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vitalis-dev/vitalis-store/internal/care"
	"github.com/vitalis-dev/vitalis-store/pkg/schema"
)

func (h *Handler) RegisterPatient(c *gin.Context) {
	var p schema.Patient
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.Care.RegisterPatient(c.Request.Context(), p)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) OpenPatient(c *gin.Context) {
	p, err := h.Care.OpenPatient(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) AnalyzeSymptoms(c *gin.Context) {
	var req care.SymptomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	check, err := h.Care.AnalyzeSymptoms(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, check)
}

func (h *Handler) BookAppointment(c *gin.Context) {
	var req care.AppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	apt, err := h.Care.BookAppointment(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, apt)
}

func (h *Handler) Appointments(c *gin.Context) {
	buckets, err := h.Care.Appointments(c.Request.Context(), h.now())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, buckets)
}

func (h *Handler) Reschedule(c *gin.Context) {
	var input struct {
		AppointmentDate string `json:"appointment_date" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	apt, err := h.Care.Reschedule(c.Request.Context(), c.Param("id"), input.AppointmentDate)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, apt)
}

func (h *Handler) CancelAppointment(c *gin.Context) {
	var input struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	apt, err := h.Care.Cancel(c.Request.Context(), c.Param("id"), input.Reason)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, apt)
}

func (h *Handler) RequestConsultation(c *gin.Context) {
	var req care.ConsultationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	out, err := h.Care.RequestConsultation(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h *Handler) Dashboard(c *gin.Context) {
	d, err := h.Care.Dashboard(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

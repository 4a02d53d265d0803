package api

import (
	"net/http"

	"class-booking/internal/models"
	"class-booking/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (h *Handler) adminStats(c *gin.Context) {
	stats, err := h.deps.Admin.Stats(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) adminListClasses(c *gin.Context) {
	classes, err := h.deps.Admin.ListClasses(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	if classes == nil {
		classes = []models.Class{}
	}
	c.JSON(http.StatusOK, gin.H{"classes": classes})
}

func (h *Handler) adminCreateClass(c *gin.Context) {
	var req service.ClassRequest
	if !bindJSON(c, &req) {
		return
	}

	class, err := h.deps.Admin.CreateClass(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"class": class})
}

func (h *Handler) adminUpdateClass(c *gin.Context) {
	var req service.ClassRequest
	if !bindJSON(c, &req) {
		return
	}

	class, err := h.deps.Admin.UpdateClass(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"class": class})
}

func (h *Handler) adminDeleteClass(c *gin.Context) {
	if err := h.deps.Admin.DeleteClass(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) adminAddSchedule(c *gin.Context) {
	var req service.ScheduleRequest
	if !bindJSON(c, &req) {
		return
	}

	schedule, err := h.deps.Admin.AddSchedule(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"schedule": schedule})
}

func (h *Handler) adminListEnrollments(c *gin.Context) {
	enrollments, err := h.deps.Admin.ListEnrollments(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	if enrollments == nil {
		enrollments = []models.EnrollmentDetail{}
	}
	c.JSON(http.StatusOK, gin.H{"enrollments": enrollments})
}

func (h *Handler) adminListPayments(c *gin.Context) {
	payments, err := h.deps.Admin.ListPayments(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	if payments == nil {
		payments = []models.PaymentDetail{}
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

func (h *Handler) adminRefundPayment(c *gin.Context) {
	paymentID := c.Param("id")
	payment, err := h.deps.Admin.RefundPayment(c.Request.Context(), paymentID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.logger.Info("Admin refunded payment",
		zap.String("payment_id", paymentID),
		zap.String("admin_id", currentUser(c).ID))
	c.JSON(http.StatusOK, gin.H{"payment": payment})
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return false
	}
	return true
}

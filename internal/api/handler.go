package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"class-booking/internal/models"
	"class-booking/internal/service"
	"class-booking/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Catalog serves the public class pages and the student dashboard
type Catalog interface {
	ListClasses(ctx context.Context) ([]models.Class, error)
	GetClass(ctx context.Context, id string) (*models.Class, error)
	ListEnrollments(ctx context.Context, userID string) ([]models.EnrollmentDetail, error)
}

// Checkout starts checkouts and reports on them
type Checkout interface {
	CreateCheckout(ctx context.Context, caller *models.User, req *service.CheckoutRequest, origin string) (*service.CheckoutResponse, error)
	GetSessionStatus(ctx context.Context, caller *models.User, sessionID string) (*service.SessionStatus, error)
}

// Webhooks applies payment provider notifications
type Webhooks interface {
	HandleEvent(ctx context.Context, payload []byte, signature string) error
}

// Admin backs the admin dashboard
type Admin interface {
	Stats(ctx context.Context) (*models.AdminStats, error)
	ListClasses(ctx context.Context) ([]models.Class, error)
	CreateClass(ctx context.Context, req *service.ClassRequest) (*models.Class, error)
	UpdateClass(ctx context.Context, id string, req *service.ClassRequest) (*models.Class, error)
	DeleteClass(ctx context.Context, id string) error
	AddSchedule(ctx context.Context, classID string, req *service.ScheduleRequest) (*models.Schedule, error)
	ListEnrollments(ctx context.Context) ([]models.EnrollmentDetail, error)
	ListPayments(ctx context.Context) ([]models.PaymentDetail, error)
	RefundPayment(ctx context.Context, paymentID string) (*models.Payment, error)
}

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// PublicConfig is what the browser needs to start a checkout
type PublicConfig struct {
	PublishableKey string `json:"publishableKey"`
	PayPalClientID string `json:"paypalClientId"`
	PayPalEnabled  bool   `json:"paypalEnabled"`
}

// Deps collects everything the HTTP layer calls into
type Deps struct {
	Catalog  Catalog
	Checkout Checkout
	Webhooks Webhooks
	Admin    Admin
	Verifier TokenVerifier
	Users    UserStore
	Checks   map[string]Pinger
	Public   PublicConfig
	Origins  []string
}

// Handler contains HTTP handlers
type Handler struct {
	deps   Deps
	logger *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(deps Deps) *Handler {
	return &Handler{
		deps:   deps,
		logger: util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())
	if len(h.deps.Origins) > 0 {
		router.Use(corsMiddleware(h.deps.Origins))
	}

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authed := authenticate(h.deps.Verifier, h.deps.Users)

	api := router.Group("/api")
	{
		api.GET("/classes", h.listClasses)
		api.GET("/classes/:id", h.getClass)
		api.GET("/enrollments", authed, h.listEnrollments)

		api.POST("/payments/stripe", authed, h.createCheckout)
		api.POST("/payments/webhook", h.stripeWebhook)
		api.GET("/payments/session/:sessionId", authed, h.sessionStatus)
		api.GET("/payments/config", h.paymentConfig)
	}

	admin := router.Group("/api/admin", authed, requireAdmin())
	{
		admin.GET("/stats", h.adminStats)
		admin.GET("/classes", h.adminListClasses)
		admin.POST("/classes", h.adminCreateClass)
		admin.PUT("/classes/:id", h.adminUpdateClass)
		admin.DELETE("/classes/:id", h.adminDeleteClass)
		admin.POST("/classes/:id/schedules", h.adminAddSchedule)
		admin.GET("/enrollments", h.adminListEnrollments)
		admin.GET("/payments", h.adminListPayments)
		admin.POST("/payments/:id/refund", h.adminRefundPayment)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every backing dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failures := gin.H{}
	for name, p := range h.deps.Checks {
		if err := p.Ping(ctx); err != nil {
			failures[name] = err.Error()
		}
	}
	if len(failures) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "not ready",
			"details": failures,
			"time":    time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// listClasses handles the public class listing
func (h *Handler) listClasses(c *gin.Context) {
	classes, err := h.deps.Catalog.ListClasses(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"classes": classes})
}

// getClass handles the class detail page
func (h *Handler) getClass(c *gin.Context) {
	class, err := h.deps.Catalog.GetClass(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"class": class})
}

// listEnrollments handles the student dashboard
func (h *Handler) listEnrollments(c *gin.Context) {
	enrollments, err := h.deps.Catalog.ListEnrollments(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if enrollments == nil {
		enrollments = []models.EnrollmentDetail{}
	}
	c.JSON(http.StatusOK, gin.H{"enrollments": enrollments})
}

// createCheckout handles checkout initiation
func (h *Handler) createCheckout(c *gin.Context) {
	var req service.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	resp, err := h.deps.Checkout.CreateCheckout(c.Request.Context(), currentUser(c), &req, c.GetHeader("Origin"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// stripeWebhook verifies and applies a provider notification
func (h *Handler) stripeWebhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Webhook Error: " + err.Error()})
		return
	}

	if err := h.deps.Webhooks.HandleEvent(c.Request.Context(), payload, c.GetHeader("Stripe-Signature")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Webhook Error: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

// sessionStatus is polled by the payment success page
func (h *Handler) sessionStatus(c *gin.Context) {
	status, err := h.deps.Checkout.GetSessionStatus(c.Request.Context(), currentUser(c), c.Param("sessionId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) paymentConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.deps.Public)
}

var clientErrors = []struct {
	err     error
	status  int
	message string
}{
	{service.ErrMissingFields, http.StatusBadRequest, "Missing required fields"},
	{service.ErrForbidden, http.StatusForbidden, "Forbidden"},
	{service.ErrClassNotFound, http.StatusNotFound, "Class not found"},
	{service.ErrScheduleNotFound, http.StatusNotFound, "Schedule not found"},
	{service.ErrScheduleFull, http.StatusConflict, "Schedule is full"},
	{service.ErrPaymentNotFound, http.StatusNotFound, "Payment not found"},
	{service.ErrNotRefundable, http.StatusConflict, "Only succeeded payments can be refunded"},
	{service.ErrRefundInProgress, http.StatusConflict, "Refund already in progress"},
	{service.ErrClassPriceLocked, http.StatusConflict, "Price cannot change once the class has payments"},
	{service.ErrClassInUse, http.StatusConflict, "Class has payments, deactivate it instead"},
	{service.ErrInvalidClass, http.StatusBadRequest, "Invalid class"},
	{service.ErrInvalidSchedule, http.StatusBadRequest, "Invalid schedule"},
}

// writeError maps service errors to status codes. Anything unrecognised is an
// upstream failure and its message is passed through.
func (h *Handler) writeError(c *gin.Context, err error) {
	for _, ce := range clientErrors {
		if errors.Is(err, ce.err) {
			body := gin.H{"error": ce.message}
			if err.Error() != ce.err.Error() {
				body["details"] = err.Error()
			}
			c.JSON(ce.status, body)
			return
		}
	}

	h.logger.Error("Request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

package handler

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"Lifeline/internal/service"
	"Lifeline/pkg/constant"
	"Lifeline/pkg/metrics"
	"Lifeline/pkg/middleware"
	"Lifeline/pkg/websocket"
)

// Credential endpoints share one throttle so OTP guessing is as slow as
// password guessing.
const authRate = "10-M"

// Handlers binds the HTTP surface to the services.
type Handlers struct {
	db            *gorm.DB
	auth          *service.AuthService
	sos           *service.SOSService
	notifications *service.NotificationService
	ws            *websocket.Handler
	secret        []byte
}

func New(db *gorm.DB, auth *service.AuthService, sos *service.SOSService, notifications *service.NotificationService, ws *websocket.Handler, secret []byte) *Handlers {
	return &Handlers{
		db:            db,
		auth:          auth,
		sos:           sos,
		notifications: notifications,
		ws:            ws,
		secret:        secret,
	}
}

func (h *Handlers) Register(engine *gin.Engine) {
	engine.GET("/health", h.Health)
	engine.GET("/metrics", metrics.Handler())

	auth := engine.Group("/api/auth", middleware.RateLimit(authRate))
	{
		auth.POST("/login", h.Login)
		auth.POST("/verify-otp", h.VerifyOTP)
		auth.POST("/forgot-password", h.ForgotPassword)
		auth.POST("/reset-password", h.ResetPassword)
	}

	api := engine.Group("/api", middleware.RequireAuth(h.secret))
	{
		api.GET("/notifications", h.ListNotifications)
		api.PUT("/notifications/read-all", h.MarkAllNotificationsRead)
		api.PUT("/notifications/:id/read", h.MarkNotificationRead)

		api.POST("/sos", h.RaiseSOS)
		api.GET("/sos/:id", h.GetSOS)
		api.POST("/sos/:id/accept", h.AcceptSOS)
		api.PUT("/sos/:id/resolve", h.ResolveSOS)
		api.PUT("/sos/:id/read", h.AcknowledgeSOS)
	}

	if h.ws != nil {
		live := engine.Group("/", middleware.RequireAuth(h.secret))
		websocket.RegisterRoutes(live, h.ws)
	}
}

func currentUserID(c *gin.Context) string {
	id, _ := c.Get(constant.UserField)
	s, _ := id.(string)
	return s
}

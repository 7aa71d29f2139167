package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gin-gonic/gin"
)

// Delivery channels reported by NotificationsDispatched.
const (
	ChannelStore = "store"
	ChannelLive  = "live"
	ChannelEmail = "email"
)

var (
	AlertsRaised = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lifeline_alerts_raised_total",
		Help: "SOS alerts raised",
	})
	AlertsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lifeline_alerts_accepted_total",
		Help: "Alert acceptances recorded (idempotent repeats excluded)",
	})
	AlertsResolved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lifeline_alerts_resolved_total",
		Help: "Alerts resolved",
	})
	NotificationsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lifeline_notifications_dispatched_total",
		Help: "Notifications dispatched by delivery channel",
	}, []string{"channel"})
	RemindersSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lifeline_reminders_sent_total",
		Help: "Reminder notifications issued by the sweep",
	})
	EmailAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lifeline_email_attempts_total",
		Help: "Outbound email delivery attempts, retries included",
	})
	EmailRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lifeline_email_retries_total",
		Help: "Email attempts retried after a transient relay failure",
	})
	EmailFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lifeline_email_failures_total",
		Help: "Emails abandoned after exhausting retries or a permanent failure",
	})
	LiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lifeline_live_connections",
		Help: "Currently open websocket connections",
	})
)

// Handler exposes the prometheus scrape endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

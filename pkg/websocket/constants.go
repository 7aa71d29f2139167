package websocket

// Server → client events.
const (
	EventNewSOS          = "newSOS"
	EventSOSAlert        = "sosAlert"
	EventSOSAccepted     = "sosAccepted"
	EventSOSResolved     = "sosResolved"
	EventVolunteerMoved  = "respondingVolunteerLocation"
	EventSOSReadReceipt  = "sosReadReceipt"
	EventReminder        = "reminder"
	EventPong            = "pong"
)

// Client → server events.
const (
	EventPing           = "ping"
	EventLocationUpdate = "volunteerLocationUpdate"
)

// Routes registered by the websocket handler.
const (
	RouteWebSocket       = "/ws"
	RouteWebSocketStats  = "/ws/stats"
	RouteWebSocketHealth = "/ws/health"
)

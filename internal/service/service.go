package service

// LivePusher is the slice of the websocket hub the services need. Pushes
// are best-effort: the return value only says the event was queued.
type LivePusher interface {
	SendToUser(userID, event string, data interface{}) bool
	Broadcast(event string, data interface{})
}

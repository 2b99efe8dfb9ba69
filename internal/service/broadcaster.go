package service

// Broadcaster pushes messages to connected player sessions (implemented by the ws hub)
type Broadcaster interface {
	BroadcastToAll(msgType string, payload interface{})
}

package ws

import (
	"encoding/json"
	"log"
	"sync"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Client message types
const (
	MsgJoinQueue  MessageType = "join_queue"
	MsgLeaveQueue MessageType = "leave_queue"
	MsgMarkReady  MessageType = "mark_ready"
	MsgVoteMap    MessageType = "vote_map"
)

// Server message types not covered by the notifier
const (
	MsgQueueState MessageType = "queue_state"
	MsgError      MessageType = "error"
)

// Message is the WebSocket envelope format
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Presence is told about every session that opens or closes
type Presence interface {
	Connected(playerID, sessionID string)
	Disconnected(playerID, sessionID string)
}

// Hub manages WebSocket sessions. A player may hold several sessions.
type Hub struct {
	presence Presence

	// playerID -> sessionID -> conn
	sessions map[string]map[string]*Connection

	mu sync.RWMutex

	// Channels for coordination
	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *BroadcastMessage
}

// Connection represents a WebSocket session
type Connection struct {
	SessionID string
	PlayerID  string
	Send      chan []byte
}

// BroadcastMessage is a message to broadcast to every session
type BroadcastMessage struct {
	Message *Message
}

// NewHub creates a new WebSocket hub
func NewHub(presence Presence) *Hub {
	h := &Hub{
		presence:   presence,
		sessions:   make(map[string]map[string]*Connection),
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
		broadcast:  make(chan *BroadcastMessage, 256),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			if h.sessions[conn.PlayerID] == nil {
				h.sessions[conn.PlayerID] = make(map[string]*Connection)
			}
			h.sessions[conn.PlayerID][conn.SessionID] = conn
			h.mu.Unlock()

			log.Printf("Session %s opened for player %s", conn.SessionID, conn.PlayerID)
			h.presence.Connected(conn.PlayerID, conn.SessionID)

		case conn := <-h.unregister:
			h.mu.Lock()
			removed := false
			if sessions, ok := h.sessions[conn.PlayerID]; ok {
				if existing, ok := sessions[conn.SessionID]; ok && existing == conn {
					delete(sessions, conn.SessionID)
					if len(sessions) == 0 {
						delete(h.sessions, conn.PlayerID)
					}
					close(conn.Send)
					removed = true
				}
			}
			h.mu.Unlock()

			if removed {
				log.Printf("Session %s closed for player %s", conn.SessionID, conn.PlayerID)
				h.presence.Disconnected(conn.PlayerID, conn.SessionID)
			}

		case msg := <-h.broadcast:
			h.mu.RLock()
			data, _ := json.Marshal(msg.Message)

			for _, sessions := range h.sessions {
				for _, conn := range sessions {
					select {
					case conn.Send <- data:
					default:
						// Drop message if buffer full
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a connection
func (h *Hub) Register(conn *Connection) {
	h.register <- conn
}

// Unregister removes a connection
func (h *Hub) Unregister(conn *Connection) {
	h.unregister <- conn
}

// SessionCount returns the number of open sessions of a player
func (h *Hub) SessionCount(playerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[playerID])
}

// BroadcastToAll sends a message to every session (implements service.Broadcaster)
func (h *Hub) BroadcastToAll(msgType string, payload interface{}) {
	h.broadcast <- &BroadcastMessage{
		Message: newMessage(MessageType(msgType), payload),
	}
}

func newMessage(t MessageType, payload interface{}) *Message {
	data, _ := json.Marshal(payload)
	return &Message{Type: t, Payload: data}
}

package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"pickupd/internal/model"
	"pickupd/internal/service"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	commandTimeout = 5 * time.Second

	// per session
	messageRate  = 5
	messageBurst = 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Queue is the part of the queue service players drive over the socket
type Queue interface {
	Join(ctx context.Context, playerID string, slotID int) error
	Leave(ctx context.Context, playerID string) error
	MarkReady(ctx context.Context, playerID string) error
	Vote(ctx context.Context, playerID, mapName string) error
	State() model.QueueState
}

// TokenValidator checks session tokens
type TokenValidator interface {
	ValidateToken(token string) (*model.PlayerClaims, error)
}

// Handler handles WebSocket connections
type Handler struct {
	hub   *Hub
	auth  TokenValidator
	queue Queue
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *Hub, auth TokenValidator, queue Queue) *Handler {
	return &Handler{
		hub:   hub,
		auth:  auth,
		queue: queue,
	}
}

type joinQueuePayload struct {
	SlotID int `json:"slotId"`
}

type voteMapPayload struct {
	Map string `json:"map"`
}

type errorPayload struct {
	Command MessageType `json:"command,omitempty"`
	Error   string      `json:"error"`
}

// PlayerWS handles GET /v1/ws
func (h *Handler) PlayerWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	claims, err := h.auth.ValidateToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	conn := &Connection{
		SessionID: uuid.New().String(),
		PlayerID:  claims.PlayerID,
		Send:      make(chan []byte, 256),
	}

	h.hub.Register(conn)

	// Every session starts from the current queue
	if data, err := json.Marshal(newMessage(MsgQueueState, h.queue.State())); err == nil {
		conn.Send <- data
	}

	go h.writePump(wsConn, conn)
	go h.readPump(wsConn, conn)
}

func (h *Handler) readPump(wsConn *websocket.Conn, conn *Connection) {
	defer func() {
		h.hub.Unregister(conn)
		wsConn.Close()
	}()

	wsConn.SetReadLimit(maxMessageSize)
	wsConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.SetPongHandler(func(string) error {
		wsConn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	limiter := rate.NewLimiter(rate.Limit(messageRate), messageBurst)

	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		if !limiter.Allow() {
			h.reply(conn, "", errors.New("rate limit exceeded"))
			continue
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			h.reply(conn, "", errors.New("malformed message"))
			continue
		}
		h.reply(conn, msg.Type, h.dispatch(conn.PlayerID, &msg))
	}
}

func (h *Handler) dispatch(playerID string, msg *Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	switch msg.Type {
	case MsgJoinQueue:
		var p joinQueuePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return errors.New("invalid payload")
		}
		return h.queue.Join(ctx, playerID, p.SlotID)
	case MsgLeaveQueue:
		return h.queue.Leave(ctx, playerID)
	case MsgMarkReady:
		return h.queue.MarkReady(ctx, playerID)
	case MsgVoteMap:
		var p voteMapPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil || p.Map == "" {
			return errors.New("invalid payload")
		}
		return h.queue.Vote(ctx, playerID, p.Map)
	default:
		return errors.New("unknown message type")
	}
}

// reply sends an error message to the session that issued a failed command
func (h *Handler) reply(conn *Connection, cmd MessageType, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, service.ErrStorage) {
		log.Printf("Command %s from player %s failed: %v", cmd, conn.PlayerID, err)
		err = errors.New("internal error")
	}
	data, _ := json.Marshal(newMessage(MsgError, errorPayload{Command: cmd, Error: err.Error()}))

	select {
	case conn.Send <- data:
	default:
	}
}

func (h *Handler) writePump(wsConn *websocket.Conn, conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		wsConn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				wsConn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := wsConn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

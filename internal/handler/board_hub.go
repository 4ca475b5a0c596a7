package handler

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gofiber/contrib/websocket"
)

// wsConn is the slice of *websocket.Conn the hub needs. Kept small so
// tests can substitute a recording connection.
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// wsClient is one authenticated websocket connection. The identity fields
// are fixed at handshake time and never change mid-connection. boardID is
// the room the connection currently belongs to (0 = none); it is only
// touched from the connection's read loop.
type wsClient struct {
	sessionID string
	userID    int64
	nickname  string
	color     string
	conn      wsConn
	writeMu   sync.Mutex
	boardID   int64
}

// wsEvent is the wire envelope for both directions.
type wsEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// BoardHub tracks which connections are in which board room and fans
// messages out to them. It is broadcast plumbing only; the presence
// registry owns the user-facing member list and the permission evaluator
// owns authorization.
type BoardHub struct {
	mu    sync.RWMutex
	rooms map[int64]map[string]*wsClient
}

// NewBoardHub BoardHub 생성
func NewBoardHub() *BoardHub {
	return &BoardHub{
		rooms: make(map[int64]map[string]*wsClient),
	}
}

// Add registers a client in a board room.
func (h *BoardHub) Add(boardID int64, client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[boardID]
	if !ok {
		room = make(map[string]*wsClient)
		h.rooms[boardID] = room
	}
	room[client.sessionID] = client
}

// Remove deregisters a client; an emptied room is dropped.
func (h *BoardHub) Remove(boardID int64, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[boardID]
	if !ok {
		return
	}
	delete(room, sessionID)
	if len(room) == 0 {
		delete(h.rooms, boardID)
	}
}

// RoomSize returns the number of connections in a board room.
func (h *BoardHub) RoomSize(boardID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[boardID])
}

// Broadcast sends an event to every connection in the room, optionally
// skipping one session (the originator). Delivery is best effort; a slow
// or dead connection only loses its own copy.
func (h *BoardHub) Broadcast(boardID int64, event string, payload interface{}, excludeSession string) {
	data, err := marshalEvent(event, payload)
	if err != nil {
		log.Printf("[BoardHub] failed to marshal %s: %v", event, err)
		return
	}

	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.rooms[boardID]))
	for sessionID, client := range h.rooms[boardID] {
		if sessionID == excludeSession {
			continue
		}
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if err := client.write(data); err != nil {
			log.Printf("[BoardHub] failed to send %s to %s: %v", event, client.sessionID, err)
		}
	}
}

// Send delivers an event to a single connection.
func (h *BoardHub) Send(client *wsClient, event string, payload interface{}) {
	data, err := marshalEvent(event, payload)
	if err != nil {
		log.Printf("[BoardHub] failed to marshal %s: %v", event, err)
		return
	}
	if err := client.write(data); err != nil {
		log.Printf("[BoardHub] failed to send %s to %s: %v", event, client.sessionID, err)
	}
}

func (c *wsClient) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func marshalEvent(event string, payload interface{}) ([]byte, error) {
	evt := struct {
		Event string      `json:"event"`
		Data  interface{} `json:"data,omitempty"`
	}{Event: event, Data: payload}
	return json.Marshal(evt)
}

package handler

import (
	"encoding/json"
	"errors"
	"log"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"whiteboard-backend/internal/model"
	"whiteboard-backend/internal/presence"
	"whiteboard-backend/internal/store"
)

const maxMessageLength = 500

// BoardWSHandler routes whiteboard websocket events. Every event that
// touches a board re-resolves the caller's role from the board record, so
// permission changes apply to the very next event without reconnecting.
type BoardWSHandler struct {
	store    *store.BoardStore
	presence *presence.Registry
	hub      *BoardHub
}

// NewBoardWSHandler BoardWSHandler 생성
func NewBoardWSHandler(s *store.BoardStore, p *presence.Registry, hub *BoardHub) *BoardWSHandler {
	return &BoardWSHandler{store: s, presence: p, hub: hub}
}

// HandleWebSocket은 인증된 연결의 읽기 루프
// Identity comes from Locals set by the upgrade guard; the session ID is
// minted here and identifies this connection for its whole lifetime.
func (h *BoardWSHandler) HandleWebSocket(c *websocket.Conn) {
	userID, ok := c.Locals("userID").(int64)
	if !ok {
		log.Println("⚠️ [BoardWS] connection without userID, closing")
		c.Close()
		return
	}
	nickname, _ := c.Locals("nickname").(string)
	color, _ := c.Locals("color").(string)

	client := &wsClient{
		sessionID: uuid.NewString(),
		userID:    userID,
		nickname:  nickname,
		color:     color,
		conn:      c,
	}

	log.Printf("🔌 [BoardWS] connected: user=%d session=%s", client.userID, client.sessionID)
	defer h.disconnect(client)

	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("⚠️ [BoardWS] read error: user=%d: %v", client.userID, err)
			}
			return
		}

		var evt wsEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			h.sendError(client, "invalid message format")
			continue
		}
		h.dispatch(client, evt)
	}
}

func (h *BoardWSHandler) dispatch(client *wsClient, evt wsEvent) {
	switch evt.Event {
	case "join-board":
		h.handleJoinBoard(client, evt.Data)
	case "request-board-state":
		h.handleRequestBoardState(client, evt.Data)
	case "draw":
		h.handleDraw(client, evt.Data)
	case "cursor-move":
		h.handleCursorMove(client, evt.Data)
	case "clear-canvas":
		h.handleClearCanvas(client, evt.Data)
	case "undo":
		h.handleUndo(client, evt.Data)
	case "save-version":
		h.handleSaveVersion(client, evt.Data)
	case "load-version":
		h.handleLoadVersion(client, evt.Data)
	case "request-versions":
		h.handleRequestVersions(client, evt.Data)
	case "request-messages":
		h.handleRequestMessages(client, evt.Data)
	case "send-message":
		h.handleSendMessage(client, evt.Data)
	case "edit-message":
		h.handleEditMessage(client, evt.Data)
	case "delete-message":
		h.handleDeleteMessage(client, evt.Data)
	case "pin-message":
		h.handlePinMessage(client, evt.Data)
	default:
		h.sendError(client, "unknown event: "+evt.Event)
	}
}

// ==================== 입장 / 상태 ====================

func (h *BoardWSHandler) handleJoinBoard(client *wsClient, data json.RawMessage) {
	var p joinBoardPayload
	if err := json.Unmarshal(data, &p); err != nil || p.BoardID == 0 {
		h.sendError(client, "invalid join-board payload")
		return
	}

	board, err := h.store.GetBoard(p.BoardID)
	if err != nil {
		h.sendError(client, "Board not found")
		return
	}
	role, ok := board.ResolveRole(client.userID)
	if !ok {
		h.sendError(client, "Access denied")
		return
	}

	// Load the state before touching room membership: a failed read must
	// not leave the session registered without a board-state.
	drawings, err := h.store.Drawings(p.BoardID)
	if err != nil {
		h.sendError(client, "failed to load board state")
		return
	}

	// A second join from the same connection supersedes the first.
	if client.boardID != 0 && client.boardID != p.BoardID {
		h.leaveBoard(client)
	}

	client.boardID = p.BoardID
	h.hub.Add(p.BoardID, client)
	entry := presence.Entry{
		SessionID: client.sessionID,
		UserID:    client.userID,
		Nickname:  client.nickname,
		Color:     client.color,
		Role:      role,
	}
	h.presence.Join(p.BoardID, entry)

	h.hub.Send(client, "board-state", boardStatePayload{
		Drawings: toDrawingDTOs(drawings),
		Users:    h.presence.MembersOf(p.BoardID),
		UserRole: role,
	})
	h.hub.Broadcast(p.BoardID, "user-joined", entry, client.sessionID)
	log.Printf("👋 [BoardWS] user %d joined board %d as %s", client.userID, p.BoardID, role)
}

func (h *BoardWSHandler) handleRequestBoardState(client *wsClient, data json.RawMessage) {
	boardID, ok := h.memberBoard(client, data)
	if !ok {
		return
	}
	role, _, ok := h.resolveRole(client, boardID)
	if !ok {
		return
	}
	drawings, err := h.store.Drawings(boardID)
	if err != nil {
		h.sendError(client, "failed to load board state")
		return
	}
	h.hub.Send(client, "board-state", boardStatePayload{
		Drawings: toDrawingDTOs(drawings),
		Users:    h.presence.MembersOf(boardID),
		UserRole: role,
	})
}

// ==================== 드로잉 ====================

func (h *BoardWSHandler) handleDraw(client *wsClient, data json.RawMessage) {
	var p drawPayload
	if err := json.Unmarshal(data, &p); err != nil {
		h.sendError(client, "invalid draw payload")
		return
	}
	if !h.requireMember(client, p.BoardID) {
		return
	}
	role, _, ok := h.resolveRole(client, p.BoardID)
	if !ok {
		return
	}
	if !role.CanEdit() {
		h.sendError(client, "You do not have permission to draw")
		return
	}

	drawingType := model.DrawingType(p.Type)
	if !drawingType.Valid() {
		h.sendError(client, "unknown drawing type: "+p.Type)
		return
	}
	if len(p.Data) == 0 {
		h.sendError(client, "drawing data is required")
		return
	}

	drawing := model.Drawing{
		UserID:      client.userID,
		Type:        drawingType,
		Data:        string(p.Data),
		Color:       p.Color,
		StrokeWidth: p.StrokeWidth,
	}
	if err := h.store.AppendDrawing(p.BoardID, &drawing); err != nil {
		log.Printf("❌ [BoardWS] failed to persist drawing: %v", err)
		h.sendError(client, "failed to save drawing")
		return
	}

	h.hub.Broadcast(p.BoardID, "draw", toDrawingDTO(drawing), client.sessionID)
}

func (h *BoardWSHandler) handleCursorMove(client *wsClient, data json.RawMessage) {
	var p cursorMovePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	if client.boardID == 0 || client.boardID != p.BoardID {
		return
	}
	// Ephemeral: never persisted, just relayed.
	h.hub.Broadcast(p.BoardID, "cursor-move", cursorDTO{
		SessionID: client.sessionID,
		UserID:    client.userID,
		Nickname:  client.nickname,
		Color:     client.color,
		X:         p.X,
		Y:         p.Y,
	}, client.sessionID)
}

func (h *BoardWSHandler) handleClearCanvas(client *wsClient, data json.RawMessage) {
	boardID, ok := h.memberBoard(client, data)
	if !ok {
		return
	}
	role, _, ok := h.resolveRole(client, boardID)
	if !ok {
		return
	}
	if !role.CanEdit() {
		h.sendError(client, "You do not have permission to clear the canvas")
		return
	}
	if err := h.store.ClearDrawings(boardID); err != nil {
		h.sendError(client, "failed to clear canvas")
		return
	}
	h.hub.Broadcast(boardID, "canvas-cleared", nil, "")
}

func (h *BoardWSHandler) handleUndo(client *wsClient, data json.RawMessage) {
	boardID, ok := h.memberBoard(client, data)
	if !ok {
		return
	}
	role, _, ok := h.resolveRole(client, boardID)
	if !ok {
		return
	}
	if !role.CanEdit() {
		h.sendError(client, "You do not have permission to undo")
		return
	}

	removed, err := h.store.RemoveLastDrawingByAuthor(boardID, client.userID)
	if err != nil {
		h.sendError(client, "failed to undo")
		return
	}
	if !removed {
		// Nothing of this author's left to undo.
		return
	}

	h.hub.Broadcast(boardID, "drawing-removed", nil, "")
	h.broadcastBoardState(boardID)
}

// ==================== 버전 ====================

func (h *BoardWSHandler) handleSaveVersion(client *wsClient, data json.RawMessage) {
	boardID, ok := h.memberBoard(client, data)
	if !ok {
		return
	}
	role, _, ok := h.resolveRole(client, boardID)
	if !ok {
		return
	}
	if !role.IsOwner() {
		h.sendError(client, "Only the board owner can save versions")
		return
	}

	total, err := h.store.SaveVersion(boardID, client.userID)
	if err != nil {
		log.Printf("❌ [BoardWS] failed to save version: %v", err)
		h.sendError(client, "failed to save version")
		return
	}
	h.hub.Send(client, "version-saved", versionSavedPayload{
		Message:       "Version saved",
		TotalVersions: total,
	})
}

func (h *BoardWSHandler) handleLoadVersion(client *wsClient, data json.RawMessage) {
	var p loadVersionPayload
	if err := json.Unmarshal(data, &p); err != nil {
		h.sendError(client, "invalid load-version payload")
		return
	}
	if !h.requireMember(client, p.BoardID) {
		return
	}
	role, _, ok := h.resolveRole(client, p.BoardID)
	if !ok {
		return
	}
	if !role.IsOwner() {
		h.sendError(client, "Only the board owner can load versions")
		return
	}

	if _, err := h.store.LoadVersion(p.BoardID, p.VersionIndex); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.sendError(client, "Version not found")
			return
		}
		log.Printf("❌ [BoardWS] failed to load version: %v", err)
		h.sendError(client, "failed to load version")
		return
	}

	h.broadcastBoardState(p.BoardID)
}

func (h *BoardWSHandler) handleRequestVersions(client *wsClient, data json.RawMessage) {
	boardID, ok := h.memberBoard(client, data)
	if !ok {
		return
	}
	versions, err := h.store.ListVersions(boardID)
	if err != nil {
		h.sendError(client, "failed to load versions")
		return
	}

	saverIDs := make([]int64, 0, len(versions))
	for _, v := range versions {
		saverIDs = append(saverIDs, v.SavedBy)
	}
	nicknames, err := h.store.Nicknames(saverIDs)
	if err != nil {
		h.sendError(client, "failed to load versions")
		return
	}

	out := make([]versionDTO, 0, len(versions))
	for i, v := range versions {
		var snapshot []json.RawMessage
		_ = json.Unmarshal([]byte(v.Drawings), &snapshot)
		savedBy, ok := nicknames[v.SavedBy]
		if !ok {
			// Saver account is gone; fall back to the raw id.
			savedBy = strconv.FormatInt(v.SavedBy, 10)
		}
		out = append(out, versionDTO{
			Index:        i,
			Timestamp:    v.CreatedAt,
			SavedBy:      savedBy,
			DrawingCount: len(snapshot),
		})
	}
	h.hub.Send(client, "all-versions", out)
}

// ==================== 채팅 ====================

func (h *BoardWSHandler) handleRequestMessages(client *wsClient, data json.RawMessage) {
	boardID, ok := h.memberBoard(client, data)
	if !ok {
		return
	}
	messages, err := h.store.ListMessages(boardID)
	if err != nil {
		h.sendError(client, "failed to load messages")
		return
	}
	h.hub.Send(client, "all-messages", messages)
}

func (h *BoardWSHandler) handleSendMessage(client *wsClient, data json.RawMessage) {
	var p sendMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		h.sendError(client, "invalid send-message payload")
		return
	}
	if !h.requireMember(client, p.BoardID) {
		return
	}
	role, _, ok := h.resolveRole(client, p.BoardID)
	if !ok {
		return
	}
	if !role.CanComment() {
		h.sendError(client, "You do not have permission to chat")
		return
	}

	text := strings.TrimSpace(p.Text)
	if text == "" {
		h.sendError(client, "message text is required")
		return
	}
	if utf8.RuneCountInString(text) > maxMessageLength {
		h.sendError(client, "message exceeds 500 characters")
		return
	}

	msg := model.ChatMessage{
		UserID:    client.userID,
		Nickname:  client.nickname,
		UserColor: client.color,
		Text:      text,
	}
	if err := h.store.AppendMessage(p.BoardID, &msg); err != nil {
		log.Printf("❌ [BoardWS] failed to persist message: %v", err)
		h.sendError(client, "failed to send message")
		return
	}
	h.hub.Broadcast(p.BoardID, "new-message", msg, "")
}

func (h *BoardWSHandler) handleEditMessage(client *wsClient, data json.RawMessage) {
	var p editMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		h.sendError(client, "invalid edit-message payload")
		return
	}
	if !h.requireMember(client, p.BoardID) {
		return
	}

	newText := strings.TrimSpace(p.NewText)
	if newText == "" {
		h.sendError(client, "message text is required")
		return
	}
	if utf8.RuneCountInString(newText) > maxMessageLength {
		h.sendError(client, "message exceeds 500 characters")
		return
	}

	if _, err := h.store.EditMessage(p.BoardID, p.MessageID, client.userID, newText); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			h.sendError(client, "Message not found")
		case errors.Is(err, store.ErrPermissionDenied):
			h.sendError(client, "You can only edit your own messages")
		default:
			h.sendError(client, "failed to edit message")
		}
		return
	}

	h.hub.Broadcast(p.BoardID, "message-updated", messageUpdatedPayload{
		MessageID: p.MessageID,
		NewText:   newText,
		Edited:    true,
	}, "")
}

func (h *BoardWSHandler) handleDeleteMessage(client *wsClient, data json.RawMessage) {
	var p deleteMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		h.sendError(client, "invalid delete-message payload")
		return
	}
	if !h.requireMember(client, p.BoardID) {
		return
	}

	if err := h.store.DeleteMessage(p.BoardID, p.MessageID, client.userID); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			h.sendError(client, "Message not found")
		case errors.Is(err, store.ErrPermissionDenied):
			h.sendError(client, "You can only delete your own messages")
		default:
			h.sendError(client, "failed to delete message")
		}
		return
	}

	h.hub.Broadcast(p.BoardID, "message-deleted", messageDeletedPayload{MessageID: p.MessageID}, "")
}

func (h *BoardWSHandler) handlePinMessage(client *wsClient, data json.RawMessage) {
	var p pinMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		h.sendError(client, "invalid pin-message payload")
		return
	}
	if !h.requireMember(client, p.BoardID) {
		return
	}
	role, _, ok := h.resolveRole(client, p.BoardID)
	if !ok {
		return
	}
	if !role.IsOwner() {
		h.sendError(client, "Only the board owner can pin messages")
		return
	}

	if _, err := h.store.SetPinned(p.BoardID, p.MessageID, p.IsPinned); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.sendError(client, "Message not found")
			return
		}
		h.sendError(client, "failed to pin message")
		return
	}

	h.hub.Broadcast(p.BoardID, "message-pinned", messagePinnedPayload{
		MessageID: p.MessageID,
		IsPinned:  p.IsPinned,
	}, "")
}

// ==================== 공통 ====================

// memberBoard parses a payload that only carries boardId and checks room
// membership in one step.
func (h *BoardWSHandler) memberBoard(client *wsClient, data json.RawMessage) (int64, bool) {
	var p joinBoardPayload
	if err := json.Unmarshal(data, &p); err != nil || p.BoardID == 0 {
		h.sendError(client, "boardId is required")
		return 0, false
	}
	if !h.requireMember(client, p.BoardID) {
		return 0, false
	}
	return p.BoardID, true
}

func (h *BoardWSHandler) requireMember(client *wsClient, boardID int64) bool {
	if boardID == 0 || client.boardID != boardID {
		h.sendError(client, "join the board first")
		return false
	}
	return true
}

// resolveRole re-reads the board and resolves the caller's current role.
// A revoked member gets an Access denied here even though they are still
// in the room.
func (h *BoardWSHandler) resolveRole(client *wsClient, boardID int64) (model.Role, *model.Board, bool) {
	board, err := h.store.GetBoard(boardID)
	if err != nil {
		h.sendError(client, "Board not found")
		return "", nil, false
	}
	role, ok := board.ResolveRole(client.userID)
	if !ok {
		h.sendError(client, "Access denied")
		return "", nil, false
	}
	return role, board, true
}

// broadcastBoardState pushes the authoritative drawing log to everyone in
// the room. userRole is per-viewer so it is omitted here.
func (h *BoardWSHandler) broadcastBoardState(boardID int64) {
	drawings, err := h.store.Drawings(boardID)
	if err != nil {
		log.Printf("❌ [BoardWS] failed to load board state for broadcast: %v", err)
		return
	}
	h.hub.Broadcast(boardID, "board-state", boardStatePayload{
		Drawings: toDrawingDTOs(drawings),
		Users:    h.presence.MembersOf(boardID),
	}, "")
}

func (h *BoardWSHandler) sendError(client *wsClient, message string) {
	h.hub.Send(client, "error", errorPayload{Message: message})
}

// leaveBoard removes the client from its current room and tells the rest.
func (h *BoardWSHandler) leaveBoard(client *wsClient) {
	boardID := client.boardID
	if boardID == 0 {
		return
	}
	h.presence.Leave(boardID, client.sessionID)
	h.hub.Remove(boardID, client.sessionID)
	h.hub.Broadcast(boardID, "user-left", userLeftPayload{
		UserID:    client.userID,
		SessionID: client.sessionID,
	}, client.sessionID)
	client.boardID = 0
}

func (h *BoardWSHandler) disconnect(client *wsClient) {
	h.leaveBoard(client)
	client.conn.Close()
	log.Printf("🔌 [BoardWS] disconnected: user=%d session=%s", client.userID, client.sessionID)
}

package handler

import (
	"encoding/json"
	"time"

	"whiteboard-backend/internal/model"
	"whiteboard-backend/internal/presence"
)

// ==================== 인바운드 페이로드 ====================

type joinBoardPayload struct {
	BoardID int64 `json:"boardId"`
}

type drawPayload struct {
	BoardID     int64           `json:"boardId"`
	Type        string          `json:"type"`
	Data        json.RawMessage `json:"data"`
	Color       string          `json:"color"`
	StrokeWidth int             `json:"strokeWidth"`
}

type cursorMovePayload struct {
	BoardID int64   `json:"boardId"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
}

type loadVersionPayload struct {
	BoardID      int64 `json:"boardId"`
	VersionIndex int   `json:"versionIndex"`
}

type sendMessagePayload struct {
	BoardID int64  `json:"boardId"`
	Text    string `json:"text"`
}

type editMessagePayload struct {
	BoardID   int64  `json:"boardId"`
	MessageID int64  `json:"messageId"`
	NewText   string `json:"newText"`
}

type deleteMessagePayload struct {
	BoardID   int64 `json:"boardId"`
	MessageID int64 `json:"messageId"`
}

type pinMessagePayload struct {
	BoardID   int64 `json:"boardId"`
	MessageID int64 `json:"messageId"`
	IsPinned  bool  `json:"isPinned"`
}

// ==================== 아웃바운드 페이로드 ====================

type drawingDTO struct {
	ID          int64           `json:"id"`
	Type        string          `json:"type"`
	Data        json.RawMessage `json:"data"`
	Color       string          `json:"color"`
	StrokeWidth int             `json:"strokeWidth"`
	UserID      int64           `json:"userId"`
	Timestamp   time.Time       `json:"timestamp"`
}

func toDrawingDTO(d model.Drawing) drawingDTO {
	return drawingDTO{
		ID:          d.ID,
		Type:        string(d.Type),
		Data:        json.RawMessage(d.Data),
		Color:       d.Color,
		StrokeWidth: d.StrokeWidth,
		UserID:      d.UserID,
		Timestamp:   d.CreatedAt,
	}
}

func toDrawingDTOs(drawings []model.Drawing) []drawingDTO {
	out := make([]drawingDTO, 0, len(drawings))
	for _, d := range drawings {
		out = append(out, toDrawingDTO(d))
	}
	return out
}

type boardStatePayload struct {
	Drawings []drawingDTO     `json:"drawings"`
	Users    []presence.Entry `json:"users"`
	UserRole model.Role       `json:"userRole,omitempty"`
}

type cursorDTO struct {
	SessionID string  `json:"socketId"`
	UserID    int64   `json:"userId"`
	Nickname  string  `json:"nickname"`
	Color     string  `json:"color"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
}

type userLeftPayload struct {
	UserID    int64  `json:"id"`
	SessionID string `json:"socketId"`
}

type versionDTO struct {
	Index        int       `json:"index"`
	Timestamp    time.Time `json:"timestamp"`
	SavedBy      string    `json:"savedBy"`
	DrawingCount int       `json:"drawingCount"`
}

type versionSavedPayload struct {
	Message       string `json:"message"`
	TotalVersions int    `json:"totalVersions"`
}

type messageUpdatedPayload struct {
	MessageID int64  `json:"messageId"`
	NewText   string `json:"newText"`
	Edited    bool   `json:"edited"`
}

type messageDeletedPayload struct {
	MessageID int64 `json:"messageId"`
}

type messagePinnedPayload struct {
	MessageID int64 `json:"messageId"`
	IsPinned  bool  `json:"isPinned"`
}

type errorPayload struct {
	Message string `json:"message"`
}

package model

import (
	"time"
)

// User 사용자
type User struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Email        string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Nickname     string    `gorm:"type:varchar(100);not null" json:"nickname"`
	Color        string    `gorm:"type:varchar(20);not null" json:"color"`
	PasswordHash string    `gorm:"type:varchar(100);not null" json:"-"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (User) TableName() string {
	return "users"
}

// Board 공유 보드
type Board struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"type:varchar(200);not null" json:"name"`
	OwnerID   int64     `gorm:"not null;index" json:"owner_id"`
	RoomCode  string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"room_code"`
	IsPrivate bool      `gorm:"default:false" json:"is_private"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Relations
	Owner       User              `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
	Permissions []BoardPermission `gorm:"foreignKey:BoardID" json:"permissions,omitempty"`
}

func (Board) TableName() string {
	return "boards"
}

// ResolveRole maps a user to their role on this board. The owner is always
// RoleOwner and never appears in Permissions. Non-members get an implicit
// RoleViewer on public boards and no role at all on private ones.
func (b *Board) ResolveRole(userID int64) (Role, bool) {
	if userID == b.OwnerID {
		return RoleOwner, true
	}
	for _, p := range b.Permissions {
		if p.UserID == userID {
			return p.Role, true
		}
	}
	if b.IsPrivate {
		return "", false
	}
	return RoleViewer, true
}

// BoardPermission 보드 권한 엔트리
type BoardPermission struct {
	ID      int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	BoardID int64     `gorm:"not null;uniqueIndex:idx_board_user" json:"board_id"`
	UserID  int64     `gorm:"not null;uniqueIndex:idx_board_user" json:"user_id"`
	Role    Role      `gorm:"type:varchar(20);not null" json:"role"`
	AddedAt time.Time `gorm:"autoCreateTime" json:"added_at"`

	// Relations
	Board Board `gorm:"foreignKey:BoardID" json:"board,omitempty"`
	User  User  `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (BoardPermission) TableName() string {
	return "board_permissions"
}

// Drawing is one entry of a board's drawing log. Row order (ID ASC) is the
// causal order for the board. Entries are immutable once created; they only
// disappear through per-author undo or a bulk clear.
type Drawing struct {
	ID          int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	BoardID     int64       `gorm:"not null;index:idx_board_drawings" json:"-"`
	UserID      int64       `gorm:"not null" json:"userId"`
	Type        DrawingType `gorm:"type:varchar(20);not null" json:"type"`
	Data        string      `gorm:"type:jsonb;not null" json:"data"` // point list / geometry / text
	Color       string      `gorm:"type:varchar(20);default:'#000000'" json:"color"`
	StrokeWidth int         `gorm:"default:2" json:"strokeWidth"`
	CreatedAt   time.Time   `gorm:"autoCreateTime" json:"timestamp"`
}

func (Drawing) TableName() string {
	return "drawings"
}

// ChatMessage 보드 채팅 메시지. The author summary (nickname, color) is
// captured at send time, not joined live.
type ChatMessage struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	BoardID   int64     `gorm:"not null;index" json:"-"`
	UserID    int64     `gorm:"not null" json:"userId"`
	Nickname  string    `gorm:"type:varchar(100);not null" json:"nickname"`
	UserColor string    `gorm:"type:varchar(20);not null" json:"userColor"`
	Text      string    `gorm:"type:varchar(500);not null" json:"text"`
	Edited    bool      `gorm:"default:false" json:"edited"`
	Pinned    bool      `gorm:"default:false" json:"isPinned"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"timestamp"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}

// BoardVersion is a manually saved snapshot of a board's full drawing log.
// At most five per board; the oldest is evicted first.
type BoardVersion struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	BoardID   int64     `gorm:"not null;index" json:"-"`
	SavedBy   int64     `gorm:"not null" json:"savedBy"`
	Drawings  string    `gorm:"type:jsonb;not null" json:"-"` // serialized []Drawing
	CreatedAt time.Time `gorm:"autoCreateTime" json:"timestamp"`
}

func (BoardVersion) TableName() string {
	return "board_versions"
}

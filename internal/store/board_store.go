package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"whiteboard-backend/internal/model"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("permission denied")
)

const (
	defaultMessageTTL  = 24 * time.Hour
	defaultMaxVersions = 5
)

// BoardStore owns all persisted board state. Every mutation takes the
// board's lock first, so concurrent events on one board apply strictly in
// order; boards never block each other.
type BoardStore struct {
	db          *gorm.DB
	locks       *boardLocks
	messageTTL  time.Duration
	maxVersions int
}

// NewBoardStore BoardStore 생성
func NewBoardStore(db *gorm.DB, messageTTL time.Duration, maxVersions int) *BoardStore {
	if messageTTL <= 0 {
		messageTTL = defaultMessageTTL
	}
	if maxVersions <= 0 {
		maxVersions = defaultMaxVersions
	}
	return &BoardStore{
		db:          db,
		locks:       newBoardLocks(),
		messageTTL:  messageTTL,
		maxVersions: maxVersions,
	}
}

// =============================================================================
// Boards
// =============================================================================

// GetBoard returns the board with its permission list preloaded.
func (s *BoardStore) GetBoard(boardID int64) (*model.Board, error) {
	var board model.Board
	err := s.db.Preload("Permissions").First(&board, boardID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get board: %w", err)
	}
	return &board, nil
}

// GetBoardByCode looks a board up by its room code (case-insensitive).
func (s *BoardStore) GetBoardByCode(roomCode string) (*model.Board, error) {
	var board model.Board
	err := s.db.Preload("Permissions").
		Where("room_code = ?", strings.ToLower(strings.TrimSpace(roomCode))).
		First(&board).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get board by code: %w", err)
	}
	return &board, nil
}

// CreateBoard inserts a new board. The room code is stored lowercase; a
// duplicate code fails the unique index and is reported as a conflict.
func (s *BoardStore) CreateBoard(board *model.Board) error {
	board.RoomCode = strings.ToLower(strings.TrimSpace(board.RoomCode))
	if err := s.db.Create(board).Error; err != nil {
		return fmt.Errorf("create board: %w", err)
	}
	return nil
}

// ListBoardsForUser returns boards the user owns, is listed on, or that
// are public, newest activity first.
func (s *BoardStore) ListBoardsForUser(userID int64) ([]model.Board, error) {
	var boards []model.Board
	err := s.db.Preload("Permissions").
		Where("owner_id = ?", userID).
		Or("is_private = ?", false).
		Or("id IN (?)", s.db.Model(&model.BoardPermission{}).Select("board_id").Where("user_id = ?", userID)).
		Order("updated_at DESC").
		Find(&boards).Error
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	return boards, nil
}

// AddPermission grants a role on a board, replacing any previous grant for
// the same user. The owner is never stored in the permission list.
func (s *BoardStore) AddPermission(boardID, userID int64, role model.Role) error {
	lock := s.locks.get(boardID)
	lock.Lock()
	defer lock.Unlock()

	var board model.Board
	if err := s.db.First(&board, boardID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("add permission: %w", err)
	}
	if board.OwnerID == userID {
		return nil
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("board_id = ? AND user_id = ?", boardID, userID).
			Delete(&model.BoardPermission{}).Error; err != nil {
			return err
		}
		return tx.Create(&model.BoardPermission{
			BoardID: boardID,
			UserID:  userID,
			Role:    role,
		}).Error
	})
}

// DeleteBoard removes a board and everything hanging off it.
func (s *BoardStore) DeleteBoard(boardID int64) error {
	lock := s.locks.get(boardID)
	lock.Lock()
	defer lock.Unlock()

	err := s.db.Transaction(func(tx *gorm.DB) error {
		for _, m := range []interface{}{
			&model.Drawing{}, &model.ChatMessage{}, &model.BoardVersion{}, &model.BoardPermission{},
		} {
			if err := tx.Where("board_id = ?", boardID).Delete(m).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&model.Board{}, boardID).Error
	})
	if err != nil {
		return fmt.Errorf("delete board: %w", err)
	}
	s.locks.forget(boardID)
	return nil
}

// Nicknames resolves a set of user IDs to display names. Users that no
// longer exist are simply absent from the result.
func (s *BoardStore) Nicknames(userIDs []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	var users []model.User
	if err := s.db.Select("id", "nickname").Where("id IN ?", userIDs).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("resolve nicknames: %w", err)
	}
	for _, u := range users {
		out[u.ID] = u.Nickname
	}
	return out, nil
}

// =============================================================================
// Drawing log
// =============================================================================

// Drawings returns a board's full drawing log in causal (insertion) order.
func (s *BoardStore) Drawings(boardID int64) ([]model.Drawing, error) {
	var drawings []model.Drawing
	if err := s.db.Where("board_id = ?", boardID).Order("id ASC").Find(&drawings).Error; err != nil {
		return nil, fmt.Errorf("list drawings: %w", err)
	}
	return drawings, nil
}

// AppendDrawing appends one entry to the drawing log.
func (s *BoardStore) AppendDrawing(boardID int64, drawing *model.Drawing) error {
	lock := s.locks.get(boardID)
	lock.Lock()
	defer lock.Unlock()

	drawing.BoardID = boardID
	if err := s.db.Create(drawing).Error; err != nil {
		return fmt.Errorf("append drawing: %w", err)
	}
	s.touchBoard(boardID)
	return nil
}

// RemoveLastDrawingByAuthor removes the most recent log entry authored by
// userID. This is a per-author undo: other authors' histories are
// untouched. Returns false (and no error) when the author has no entries.
func (s *BoardStore) RemoveLastDrawingByAuthor(boardID, userID int64) (bool, error) {
	lock := s.locks.get(boardID)
	lock.Lock()
	defer lock.Unlock()

	var last model.Drawing
	err := s.db.Where("board_id = ? AND user_id = ?", boardID, userID).
		Order("id DESC").First(&last).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("find last drawing: %w", err)
	}

	if err := s.db.Delete(&model.Drawing{}, last.ID).Error; err != nil {
		return false, fmt.Errorf("remove drawing: %w", err)
	}
	s.touchBoard(boardID)
	return true, nil
}

// ClearDrawings replaces the drawing log with an empty one. Irreversible
// unless a version snapshot was saved first.
func (s *BoardStore) ClearDrawings(boardID int64) error {
	lock := s.locks.get(boardID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.db.Where("board_id = ?", boardID).Delete(&model.Drawing{}).Error; err != nil {
		return fmt.Errorf("clear drawings: %w", err)
	}
	s.touchBoard(boardID)
	return nil
}

// =============================================================================
// Chat messages
// =============================================================================

// ListMessages prunes expired messages first, then returns the remainder
// in insertion order. TTL enforcement is lazy: it happens on reads, not on
// a background timer.
func (s *BoardStore) ListMessages(boardID int64) ([]model.ChatMessage, error) {
	lock := s.locks.get(boardID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.pruneExpiredMessages(boardID); err != nil {
		return nil, err
	}

	var messages []model.ChatMessage
	if err := s.db.Where("board_id = ?", boardID).Order("id ASC").Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

func (s *BoardStore) pruneExpiredMessages(boardID int64) error {
	cutoff := time.Now().Add(-s.messageTTL)
	err := s.db.Where("board_id = ? AND created_at < ?", boardID, cutoff).
		Delete(&model.ChatMessage{}).Error
	if err != nil {
		return fmt.Errorf("prune messages: %w", err)
	}
	return nil
}

// AppendMessage appends a chat message to the board's log.
func (s *BoardStore) AppendMessage(boardID int64, msg *model.ChatMessage) error {
	lock := s.locks.get(boardID)
	lock.Lock()
	defer lock.Unlock()

	msg.BoardID = boardID
	if err := s.db.Create(msg).Error; err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// EditMessage updates the text of a message. Only the author may edit;
// anyone else gets ErrPermissionDenied and the message is unchanged.
func (s *BoardStore) EditMessage(boardID, messageID, userID int64, newText string) (*model.ChatMessage, error) {
	lock := s.locks.get(boardID)
	lock.Lock()
	defer lock.Unlock()

	msg, err := s.findMessage(boardID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.UserID != userID {
		return nil, ErrPermissionDenied
	}

	msg.Text = newText
	msg.Edited = true
	if err := s.db.Model(msg).Updates(map[string]interface{}{
		"text":   newText,
		"edited": true,
	}).Error; err != nil {
		return nil, fmt.Errorf("edit message: %w", err)
	}
	return msg, nil
}

// DeleteMessage removes a message. Author only.
func (s *BoardStore) DeleteMessage(boardID, messageID, userID int64) error {
	lock := s.locks.get(boardID)
	lock.Lock()
	defer lock.Unlock()

	msg, err := s.findMessage(boardID, messageID)
	if err != nil {
		return err
	}
	if msg.UserID != userID {
		return ErrPermissionDenied
	}

	if err := s.db.Delete(&model.ChatMessage{}, msg.ID).Error; err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// SetPinned flips the pinned flag on a message. The owner-only check
// happens in the event router; the store only guards existence.
func (s *BoardStore) SetPinned(boardID, messageID int64, pinned bool) (*model.ChatMessage, error) {
	lock := s.locks.get(boardID)
	lock.Lock()
	defer lock.Unlock()

	msg, err := s.findMessage(boardID, messageID)
	if err != nil {
		return nil, err
	}

	msg.Pinned = pinned
	if err := s.db.Model(msg).Update("pinned", pinned).Error; err != nil {
		return nil, fmt.Errorf("pin message: %w", err)
	}
	return msg, nil
}

func (s *BoardStore) findMessage(boardID, messageID int64) (*model.ChatMessage, error) {
	var msg model.ChatMessage
	err := s.db.Where("board_id = ? AND id = ?", boardID, messageID).First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find message: %w", err)
	}
	return &msg, nil
}

// =============================================================================
// Version snapshots
// =============================================================================

// SaveVersion snapshots the current drawing log. If the board now has
// more than the allowed number of snapshots, the oldest are evicted until
// exactly the limit remain. Returns the resulting snapshot count.
func (s *BoardStore) SaveVersion(boardID, userID int64) (int, error) {
	lock := s.locks.get(boardID)
	lock.Lock()
	defer lock.Unlock()

	var total int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var drawings []model.Drawing
		if err := tx.Where("board_id = ?", boardID).Order("id ASC").Find(&drawings).Error; err != nil {
			return err
		}

		data, err := json.Marshal(drawings)
		if err != nil {
			return err
		}

		if err := tx.Create(&model.BoardVersion{
			BoardID:  boardID,
			SavedBy:  userID,
			Drawings: string(data),
		}).Error; err != nil {
			return err
		}

		if err := tx.Model(&model.BoardVersion{}).Where("board_id = ?", boardID).Count(&total).Error; err != nil {
			return err
		}
		if excess := int(total) - s.maxVersions; excess > 0 {
			var oldest []model.BoardVersion
			if err := tx.Select("id").Where("board_id = ?", boardID).
				Order("id ASC").Limit(excess).Find(&oldest).Error; err != nil {
				return err
			}
			ids := make([]int64, 0, len(oldest))
			for _, v := range oldest {
				ids = append(ids, v.ID)
			}
			if err := tx.Delete(&model.BoardVersion{}, ids).Error; err != nil {
				return err
			}
			total = int64(s.maxVersions)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("save version: %w", err)
	}
	return int(total), nil
}

// ListVersions returns a board's snapshots, oldest first. The slice index
// is the version index used by LoadVersion.
func (s *BoardStore) ListVersions(boardID int64) ([]model.BoardVersion, error) {
	var versions []model.BoardVersion
	if err := s.db.Where("board_id = ?", boardID).Order("id ASC").Find(&versions).Error; err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	return versions, nil
}

// LoadVersion replaces the live drawing log with the snapshot at index.
// This is not undo-able: the prior live log is gone unless it was itself
// snapshotted. Returns the restored log, or ErrNotFound for a bad index.
func (s *BoardStore) LoadVersion(boardID int64, index int) ([]model.Drawing, error) {
	lock := s.locks.get(boardID)
	lock.Lock()
	defer lock.Unlock()

	var restored []model.Drawing
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var versions []model.BoardVersion
		if err := tx.Where("board_id = ?", boardID).Order("id ASC").Find(&versions).Error; err != nil {
			return err
		}
		if index < 0 || index >= len(versions) {
			return ErrNotFound
		}

		var snapshot []model.Drawing
		if err := json.Unmarshal([]byte(versions[index].Drawings), &snapshot); err != nil {
			return fmt.Errorf("decode snapshot: %w", err)
		}

		if err := tx.Where("board_id = ?", boardID).Delete(&model.Drawing{}).Error; err != nil {
			return err
		}
		// Re-insert with the original IDs so log order and per-author undo
		// ordering survive the restore.
		for i := range snapshot {
			snapshot[i].BoardID = boardID
			if err := tx.Create(&snapshot[i]).Error; err != nil {
				return err
			}
		}
		restored = snapshot
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load version: %w", err)
	}
	s.touchBoard(boardID)
	if restored == nil {
		restored = []model.Drawing{}
	}
	return restored, nil
}

// touchBoard bumps updated_at; failures are ignored, the timestamp is
// informational only.
func (s *BoardStore) touchBoard(boardID int64) {
	s.db.Model(&model.Board{}).Where("id = ?", boardID).
		Update("updated_at", time.Now())
}

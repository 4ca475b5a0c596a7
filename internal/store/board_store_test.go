package store

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"whiteboard-backend/internal/database"
	"whiteboard-backend/internal/model"
)

func newTestStore(t *testing.T) (*BoardStore, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return NewBoardStore(db, 24*time.Hour, 5), db
}

func createTestBoard(t *testing.T, s *BoardStore, ownerID int64, private bool) *model.Board {
	t.Helper()
	board := &model.Board{
		Name:      "test board",
		OwnerID:   ownerID,
		RoomCode:  fmt.Sprintf("code-%s", t.Name()),
		IsPrivate: private,
	}
	require.NoError(t, s.CreateBoard(board))
	return board
}

func appendTestDrawing(t *testing.T, s *BoardStore, boardID, userID int64, data string) *model.Drawing {
	t.Helper()
	d := &model.Drawing{
		UserID: userID,
		Type:   model.DrawingFreehand,
		Data:   data,
		Color:  "#112233",
	}
	require.NoError(t, s.AppendDrawing(boardID, d))
	return d
}

// ==================== Boards ====================

func TestGetBoardByCodeIsCaseInsensitive(t *testing.T) {
	s, _ := newTestStore(t)
	board := &model.Board{Name: "b", OwnerID: 1, RoomCode: "AbCd1234"}
	require.NoError(t, s.CreateBoard(board))

	found, err := s.GetBoardByCode("ABCD1234")
	require.NoError(t, err)
	assert.Equal(t, board.ID, found.ID)

	_, err = s.GetBoardByCode("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddPermissionReplacesPreviousGrant(t *testing.T) {
	s, _ := newTestStore(t)
	board := createTestBoard(t, s, 1, true)

	require.NoError(t, s.AddPermission(board.ID, 2, model.RoleViewer))
	require.NoError(t, s.AddPermission(board.ID, 2, model.RoleEditor))

	got, err := s.GetBoard(board.ID)
	require.NoError(t, err)
	require.Len(t, got.Permissions, 1)
	assert.Equal(t, model.RoleEditor, got.Permissions[0].Role)
}

func TestAddPermissionSkipsOwner(t *testing.T) {
	s, _ := newTestStore(t)
	board := createTestBoard(t, s, 1, true)

	require.NoError(t, s.AddPermission(board.ID, 1, model.RoleViewer))

	got, err := s.GetBoard(board.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Permissions)

	role, ok := got.ResolveRole(1)
	assert.True(t, ok)
	assert.Equal(t, model.RoleOwner, role)
}

func TestDeleteBoardRemovesEverything(t *testing.T) {
	s, db := newTestStore(t)
	board := createTestBoard(t, s, 1, false)
	appendTestDrawing(t, s, board.ID, 1, `{"points":[]}`)
	require.NoError(t, s.AppendMessage(board.ID, &model.ChatMessage{UserID: 1, Nickname: "a", UserColor: "#fff", Text: "hi"}))
	_, err := s.SaveVersion(board.ID, 1)
	require.NoError(t, err)
	require.NoError(t, s.AddPermission(board.ID, 2, model.RoleEditor))

	require.NoError(t, s.DeleteBoard(board.ID))

	_, err = s.GetBoard(board.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	for _, m := range []interface{}{
		&model.Drawing{}, &model.ChatMessage{}, &model.BoardVersion{}, &model.BoardPermission{},
	} {
		var count int64
		require.NoError(t, db.Model(m).Where("board_id = ?", board.ID).Count(&count).Error)
		assert.Zero(t, count)
	}
}

// ==================== Drawing log ====================

func TestDrawingsKeepInsertionOrder(t *testing.T) {
	s, _ := newTestStore(t)
	board := createTestBoard(t, s, 1, false)
	for i := 0; i < 4; i++ {
		appendTestDrawing(t, s, board.ID, 1, fmt.Sprintf(`{"n":%d}`, i))
	}

	drawings, err := s.Drawings(board.ID)
	require.NoError(t, err)
	require.Len(t, drawings, 4)
	for i, d := range drawings {
		assert.Equal(t, fmt.Sprintf(`{"n":%d}`, i), d.Data)
	}
}

func TestRemoveLastDrawingByAuthorIsPerAuthor(t *testing.T) {
	s, _ := newTestStore(t)
	board := createTestBoard(t, s, 1, false)

	// Interleave two authors: alice, bob, alice, bob.
	appendTestDrawing(t, s, board.ID, 1, `{"who":"alice","n":1}`)
	appendTestDrawing(t, s, board.ID, 2, `{"who":"bob","n":1}`)
	appendTestDrawing(t, s, board.ID, 1, `{"who":"alice","n":2}`)
	appendTestDrawing(t, s, board.ID, 2, `{"who":"bob","n":2}`)

	// Alice's undo removes her newest entry, not bob's.
	removed, err := s.RemoveLastDrawingByAuthor(board.ID, 1)
	require.NoError(t, err)
	assert.True(t, removed)

	drawings, err := s.Drawings(board.ID)
	require.NoError(t, err)
	require.Len(t, drawings, 3)
	assert.Equal(t, `{"who":"alice","n":1}`, drawings[0].Data)
	assert.Equal(t, `{"who":"bob","n":1}`, drawings[1].Data)
	assert.Equal(t, `{"who":"bob","n":2}`, drawings[2].Data)

	// Exhaust alice's history; a further undo is a no-op.
	removed, err = s.RemoveLastDrawingByAuthor(board.ID, 1)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.RemoveLastDrawingByAuthor(board.ID, 1)
	require.NoError(t, err)
	assert.False(t, removed)

	drawings, err = s.Drawings(board.ID)
	require.NoError(t, err)
	assert.Len(t, drawings, 2)
}

func TestClearDrawings(t *testing.T) {
	s, _ := newTestStore(t)
	board := createTestBoard(t, s, 1, false)
	appendTestDrawing(t, s, board.ID, 1, `{"n":1}`)
	appendTestDrawing(t, s, board.ID, 2, `{"n":2}`)

	require.NoError(t, s.ClearDrawings(board.ID))

	drawings, err := s.Drawings(board.ID)
	require.NoError(t, err)
	assert.Empty(t, drawings)
}

// ==================== Chat messages ====================

func TestListMessagesPrunesExpired(t *testing.T) {
	s, db := newTestStore(t)
	board := createTestBoard(t, s, 1, false)

	old := &model.ChatMessage{UserID: 1, Nickname: "a", UserColor: "#fff", Text: "old"}
	require.NoError(t, s.AppendMessage(board.ID, old))
	fresh := &model.ChatMessage{UserID: 1, Nickname: "a", UserColor: "#fff", Text: "fresh"}
	require.NoError(t, s.AppendMessage(board.ID, fresh))

	// Backdate the first message past the 24h TTL.
	require.NoError(t, db.Model(&model.ChatMessage{}).Where("id = ?", old.ID).
		Update("created_at", time.Now().Add(-25*time.Hour)).Error)

	messages, err := s.ListMessages(board.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "fresh", messages[0].Text)

	// The expired row is actually gone, not just filtered.
	var count int64
	require.NoError(t, db.Model(&model.ChatMessage{}).Where("board_id = ?", board.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestEditMessageAuthorOnly(t *testing.T) {
	s, _ := newTestStore(t)
	board := createTestBoard(t, s, 1, false)
	msg := &model.ChatMessage{UserID: 1, Nickname: "a", UserColor: "#fff", Text: "hello"}
	require.NoError(t, s.AppendMessage(board.ID, msg))

	_, err := s.EditMessage(board.ID, msg.ID, 2, "hacked")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	updated, err := s.EditMessage(board.ID, msg.ID, 1, "hello again")
	require.NoError(t, err)
	assert.Equal(t, "hello again", updated.Text)
	assert.True(t, updated.Edited)

	_, err = s.EditMessage(board.ID, 9999, 1, "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteMessageAuthorOnly(t *testing.T) {
	s, _ := newTestStore(t)
	board := createTestBoard(t, s, 1, false)
	msg := &model.ChatMessage{UserID: 1, Nickname: "a", UserColor: "#fff", Text: "hello"}
	require.NoError(t, s.AppendMessage(board.ID, msg))

	assert.ErrorIs(t, s.DeleteMessage(board.ID, msg.ID, 2), ErrPermissionDenied)
	require.NoError(t, s.DeleteMessage(board.ID, msg.ID, 1))

	messages, err := s.ListMessages(board.ID)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestSetPinned(t *testing.T) {
	s, _ := newTestStore(t)
	board := createTestBoard(t, s, 1, false)
	msg := &model.ChatMessage{UserID: 1, Nickname: "a", UserColor: "#fff", Text: "pin me"}
	require.NoError(t, s.AppendMessage(board.ID, msg))

	pinned, err := s.SetPinned(board.ID, msg.ID, true)
	require.NoError(t, err)
	assert.True(t, pinned.Pinned)

	unpinned, err := s.SetPinned(board.ID, msg.ID, false)
	require.NoError(t, err)
	assert.False(t, unpinned.Pinned)

	_, err = s.SetPinned(board.ID, 9999, true)
	assert.ErrorIs(t, err, ErrNotFound)
}

// ==================== Version snapshots ====================

func TestSaveVersionEvictsOldestBeyondLimit(t *testing.T) {
	s, _ := newTestStore(t)
	board := createTestBoard(t, s, 1, false)

	// Seven saves, each with one more drawing than the last.
	for i := 1; i <= 7; i++ {
		appendTestDrawing(t, s, board.ID, 1, fmt.Sprintf(`{"n":%d}`, i))
		total, err := s.SaveVersion(board.ID, 1)
		require.NoError(t, err)
		if i <= 5 {
			assert.Equal(t, i, total)
		} else {
			assert.Equal(t, 5, total)
		}
	}

	versions, err := s.ListVersions(board.ID)
	require.NoError(t, err)
	require.Len(t, versions, 5)

	// The two oldest snapshots (1 and 2 drawings) were evicted.
	for i, v := range versions {
		var snapshot []model.Drawing
		require.NoError(t, json.Unmarshal([]byte(v.Drawings), &snapshot))
		assert.Len(t, snapshot, i+3)
	}
}

func TestLoadVersionRestoresSnapshot(t *testing.T) {
	s, _ := newTestStore(t)
	board := createTestBoard(t, s, 1, false)

	appendTestDrawing(t, s, board.ID, 1, `{"n":1}`)
	appendTestDrawing(t, s, board.ID, 2, `{"n":2}`)
	snapshotted, err := s.Drawings(board.ID)
	require.NoError(t, err)

	_, err = s.SaveVersion(board.ID, 1)
	require.NoError(t, err)

	// Diverge the live log, then restore.
	appendTestDrawing(t, s, board.ID, 1, `{"n":3}`)
	require.NoError(t, s.ClearDrawings(board.ID))

	restored, err := s.LoadVersion(board.ID, 0)
	require.NoError(t, err)
	require.Len(t, restored, 2)

	live, err := s.Drawings(board.ID)
	require.NoError(t, err)
	require.Len(t, live, 2)
	for i := range live {
		assert.Equal(t, snapshotted[i].ID, live[i].ID)
		assert.Equal(t, snapshotted[i].UserID, live[i].UserID)
		assert.Equal(t, snapshotted[i].Data, live[i].Data)
	}

	// Per-author undo still works on the restored log.
	removed, err := s.RemoveLastDrawingByAuthor(board.ID, 2)
	require.NoError(t, err)
	assert.True(t, removed)
}

func TestLoadVersionBadIndex(t *testing.T) {
	s, _ := newTestStore(t)
	board := createTestBoard(t, s, 1, false)
	_, err := s.SaveVersion(board.ID, 1)
	require.NoError(t, err)

	_, err = s.LoadVersion(board.ID, 1)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.LoadVersion(board.ID, -1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadVersionOfEmptyLog(t *testing.T) {
	s, _ := newTestStore(t)
	board := createTestBoard(t, s, 1, false)

	// Snapshot an empty board, draw, restore: back to empty.
	_, err := s.SaveVersion(board.ID, 1)
	require.NoError(t, err)
	appendTestDrawing(t, s, board.ID, 1, `{"n":1}`)

	restored, err := s.LoadVersion(board.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, restored)

	live, err := s.Drawings(board.ID)
	require.NoError(t, err)
	assert.Empty(t, live)
}

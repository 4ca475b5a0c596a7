package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"whiteboard-backend/internal/model"
	"whiteboard-backend/internal/store"
)

// BoardHandler 보드 REST 핸들러
type BoardHandler struct {
	store *store.BoardStore
}

// NewBoardHandler BoardHandler 생성
func NewBoardHandler(s *store.BoardStore) *BoardHandler {
	return &BoardHandler{store: s}
}

// CreateBoardRequest 보드 생성 요청
type CreateBoardRequest struct {
	Name      string `json:"name"`
	RoomCode  string `json:"roomCode"`
	IsPrivate bool   `json:"isPrivate"`
}

// JoinBoardRequest 초대 코드로 참여 요청
type JoinBoardRequest struct {
	RoomCode string `json:"roomCode"`
}

// GrantPermissionRequest 권한 부여 요청
type GrantPermissionRequest struct {
	UserID int64      `json:"userId"`
	Role   model.Role `json:"role"`
}

// CreateBoard 보드 생성
func (h *BoardHandler) CreateBoard(c *fiber.Ctx) error {
	userID := c.Locals("userID").(int64)

	var req CreateBoardRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "board name is required",
		})
	}

	// A caller may pick their own room code; otherwise one is minted.
	req.RoomCode = strings.ToLower(strings.TrimSpace(req.RoomCode))
	if req.RoomCode == "" {
		req.RoomCode = uuid.NewString()[:8]
	} else {
		_, err := h.store.GetBoardByCode(req.RoomCode)
		if err == nil {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "room code already taken",
			})
		}
		if !errors.Is(err, store.ErrNotFound) {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "database error",
			})
		}
	}

	board := model.Board{
		Name:      req.Name,
		OwnerID:   userID,
		RoomCode:  req.RoomCode,
		IsPrivate: req.IsPrivate,
	}
	if err := h.store.CreateBoard(&board); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to create board",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(board)
}

// JoinByCode 초대 코드로 보드 참여 (편집자 권한 부여)
func (h *BoardHandler) JoinByCode(c *fiber.Ctx) error {
	userID := c.Locals("userID").(int64)

	var req JoinBoardRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	req.RoomCode = strings.TrimSpace(req.RoomCode)
	if req.RoomCode == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "roomCode is required",
		})
	}

	board, err := h.store.GetBoardByCode(req.RoomCode)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "board not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "database error",
		})
	}

	if userID != board.OwnerID {
		granted := false
		for _, p := range board.Permissions {
			if p.UserID == userID {
				granted = true
				break
			}
		}

		// Knowing a private board's code is not enough: joining requires a
		// grant the owner made beforehand.
		if board.IsPrivate && !granted {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "this board is private",
			})
		}

		// First join of a public board grants editor; an existing grant
		// (e.g. commenter) is kept as-is.
		if !granted {
			if err := h.store.AddPermission(board.ID, userID, model.RoleEditor); err != nil {
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": "failed to join board",
				})
			}
		}
	}

	return c.JSON(board)
}

// ListBoards 접근 가능한 보드 목록
func (h *BoardHandler) ListBoards(c *fiber.Ctx) error {
	userID := c.Locals("userID").(int64)

	boards, err := h.store.ListBoardsForUser(userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list boards",
		})
	}
	return c.JSON(boards)
}

// GetBoard 보드 단건 조회
func (h *BoardHandler) GetBoard(c *fiber.Ctx) error {
	userID := c.Locals("userID").(int64)

	boardID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid board id",
		})
	}

	board, err := h.store.GetBoard(boardID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "board not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "database error",
		})
	}

	role, ok := board.ResolveRole(userID)
	if !ok {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "access denied",
		})
	}

	return c.JSON(fiber.Map{
		"board":    board,
		"userRole": role,
	})
}

// GrantPermission 보드 권한 부여 (소유자 전용)
func (h *BoardHandler) GrantPermission(c *fiber.Ctx) error {
	userID := c.Locals("userID").(int64)

	boardID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid board id",
		})
	}

	var req GrantPermissionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if !req.Role.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "role must be editor, commenter or viewer",
		})
	}

	board, err := h.store.GetBoard(boardID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "board not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "database error",
		})
	}
	if board.OwnerID != userID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "only the board owner can grant permissions",
		})
	}
	if req.UserID == board.OwnerID {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "owner role cannot be changed",
		})
	}

	if err := h.store.AddPermission(boardID, req.UserID, req.Role); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to grant permission",
		})
	}

	return c.JSON(fiber.Map{
		"message": "permission granted",
	})
}

// DeleteBoard 보드 삭제 (소유자 전용)
func (h *BoardHandler) DeleteBoard(c *fiber.Ctx) error {
	userID := c.Locals("userID").(int64)

	boardID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid board id",
		})
	}

	board, err := h.store.GetBoard(boardID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "board not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "database error",
		})
	}
	if board.OwnerID != userID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "only the board owner can delete the board",
		})
	}

	if err := h.store.DeleteBoard(boardID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to delete board",
		})
	}

	return c.JSON(fiber.Map{
		"message": "board deleted",
	})
}

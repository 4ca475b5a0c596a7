package handler

import (
	"errors"
	"net/mail"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"whiteboard-backend/internal/auth"
	"whiteboard-backend/internal/model"
)

// userColors 신규 사용자 커서 색상 팔레트
var userColors = []string{
	"#e6194b", "#3cb44b", "#4363d8", "#f58231", "#911eb4",
	"#46f0f0", "#f032e6", "#bcf60c", "#008080", "#9a6324",
}

// AuthHandler 인증 핸들러
type AuthHandler struct {
	db           *gorm.DB
	jwtManager   *auth.JWTManager
	secureCookie bool
}

// NewAuthHandler AuthHandler 생성
func NewAuthHandler(db *gorm.DB, jwtManager *auth.JWTManager, secureCookie bool) *AuthHandler {
	return &AuthHandler{
		db:           db,
		jwtManager:   jwtManager,
		secureCookie: secureCookie,
	}
}

// RegisterRequest 회원가입 요청
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Nickname string `json:"nickname"`
}

// LoginRequest 로그인 요청
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse 인증 응답
type AuthResponse struct {
	User        UserResponse `json:"user"`
	AccessToken string       `json:"access_token"`
	ExpiresIn   int64        `json:"expires_in"`
}

// UserResponse 사용자 응답
type UserResponse struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	Nickname string `json:"nickname"`
	Color    string `json:"color"`
}

func toUserResponse(user model.User) UserResponse {
	return UserResponse{
		ID:       user.ID,
		Email:    user.Email,
		Nickname: user.Nickname,
		Color:    user.Color,
	}
}

// Register 이메일 회원가입
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Nickname = strings.TrimSpace(req.Nickname)

	if _, err := mail.ParseAddress(req.Email); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "a valid email is required",
		})
	}
	if len(req.Password) < 8 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "password must be at least 8 characters",
		})
	}
	if req.Nickname == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "nickname is required",
		})
	}

	var existing model.User
	result := h.db.Where("email = ?", req.Email).First(&existing)
	if result.Error == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "email already registered",
		})
	}
	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "database error",
		})
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to hash password",
		})
	}

	var count int64
	h.db.Model(&model.User{}).Count(&count)

	user := model.User{
		Email:        req.Email,
		Nickname:     req.Nickname,
		Color:        userColors[count%int64(len(userColors))],
		PasswordHash: hash,
	}
	if err := h.db.Create(&user).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to create user",
		})
	}

	return h.issueTokens(c, user, fiber.StatusCreated)
}

// Login 이메일 로그인
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	var user model.User
	if err := h.db.Where("email = ?", req.Email).First(&user).Error; err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "invalid email or password",
		})
	}

	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "invalid email or password",
		})
	}

	return h.issueTokens(c, user, fiber.StatusOK)
}

// issueTokens 액세스/리프레시 토큰 발급 및 쿠키 설정
func (h *AuthHandler) issueTokens(c *fiber.Ctx, user model.User, status int) error {
	accessToken, err := h.jwtManager.GenerateAccessToken(user.ID, user.Email, user.Nickname, user.Color)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to generate token",
		})
	}

	refreshToken, err := h.jwtManager.GenerateRefreshToken(user.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to generate refresh token",
		})
	}

	// HTTP-Only 쿠키로 토큰 설정
	c.Cookie(&fiber.Cookie{
		Name:     "access_token",
		Value:    accessToken,
		Path:     "/",
		MaxAge:   60 * 60, // 1시간
		Secure:   h.secureCookie,
		HTTPOnly: true,
		SameSite: "Lax",
	})
	c.Cookie(&fiber.Cookie{
		Name:     "refresh_token",
		Value:    refreshToken,
		Path:     "/",
		MaxAge:   7 * 24 * 60 * 60, // 7일
		Secure:   h.secureCookie,
		HTTPOnly: true,
		SameSite: "Lax",
	})

	return c.Status(status).JSON(AuthResponse{
		User:        toUserResponse(user),
		AccessToken: accessToken,
		ExpiresIn:   3600,
	})
}

// RefreshToken 토큰 갱신
func (h *AuthHandler) RefreshToken(c *fiber.Ctx) error {
	refreshToken := c.Cookies("refresh_token")
	if refreshToken == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "refresh token not found",
		})
	}

	userID, err := h.jwtManager.ValidateRefreshToken(refreshToken)
	if err != nil {
		h.clearCookie(c, "refresh_token")
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "invalid or expired refresh token",
		})
	}

	var user model.User
	if err := h.db.First(&user, "id = ?", userID).Error; err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "user not found",
		})
	}

	accessToken, err := h.jwtManager.GenerateAccessToken(user.ID, user.Email, user.Nickname, user.Color)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to generate token",
		})
	}

	c.Cookie(&fiber.Cookie{
		Name:     "access_token",
		Value:    accessToken,
		Path:     "/",
		MaxAge:   60 * 60,
		Secure:   h.secureCookie,
		HTTPOnly: true,
		SameSite: "Lax",
	})

	return c.JSON(fiber.Map{
		"access_token": accessToken,
		"expires_in":   3600,
	})
}

// Logout 로그아웃
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	h.clearCookie(c, "access_token")
	h.clearCookie(c, "refresh_token")

	return c.JSON(fiber.Map{
		"message": "logged out successfully",
	})
}

// GetMe 현재 사용자 정보
func (h *AuthHandler) GetMe(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)

	var user model.User
	if err := h.db.First(&user, "id = ?", claims.UserID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "user not found",
		})
	}

	return c.JSON(toUserResponse(user))
}

func (h *AuthHandler) clearCookie(c *fiber.Ctx, name string) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   h.secureCookie,
		HTTPOnly: true,
	})
}

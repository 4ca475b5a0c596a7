package server

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"

	"whiteboard-backend/internal/auth"
	"whiteboard-backend/internal/config"
	"whiteboard-backend/internal/handler"
	"whiteboard-backend/internal/model"
	"whiteboard-backend/internal/presence"
	"whiteboard-backend/internal/store"
)

// Server Fiber 서버 래퍼
type Server struct {
	app            *fiber.App
	cfg            *config.Config
	db             *gorm.DB
	authHandler    *handler.AuthHandler
	boardHandler   *handler.BoardHandler
	boardWSHandler *handler.BoardWSHandler
	healthHandler  *handler.HealthHandler
	jwtManager     *auth.JWTManager
}

// New 새 서버 인스턴스 생성
func New(cfg *config.Config, db *gorm.DB) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "Collaborative Whiteboard Backend",
		ServerHeader:          "Fiber",
		StrictRouting:         true,
		CaseSensitive:         true,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		Prefork:               false, // WebSocket과 호환성 문제로 비활성화
		ReadBufferSize:        16384,
		WriteBufferSize:       16384,
		BodyLimit:             1 * 1024 * 1024, // 1MB
		DisableStartupMessage: false,
	})

	jwtManager := auth.NewJWTManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
	)

	boardStore := store.NewBoardStore(db, cfg.Board.MessageTTL, cfg.Board.MaxVersions)
	registry := presence.NewRegistry()
	hub := handler.NewBoardHub()

	return &Server{
		app:            app,
		cfg:            cfg,
		db:             db,
		authHandler:    handler.NewAuthHandler(db, jwtManager, cfg.Auth.SecureCookie),
		boardHandler:   handler.NewBoardHandler(boardStore),
		boardWSHandler: handler.NewBoardWSHandler(boardStore, registry, hub),
		healthHandler:  handler.NewHealthHandler(db),
		jwtManager:     jwtManager,
	}
}

// SetupMiddleware 미들웨어 설정
func (s *Server) SetupMiddleware() {
	// 패닉 복구
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// 로깅
	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "UTC",
	}))

	// CORS
	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.CORS.AllowOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: true,
	}))
}

// SetupRoutes 라우트 설정
func (s *Server) SetupRoutes() {
	// 헬스체크 엔드포인트
	s.app.Get("/health", s.healthHandler.Check)
	s.app.Get("/health/live", s.healthHandler.Liveness)
	s.app.Get("/health/ready", s.healthHandler.Readiness)

	// Rate Limiter 설정 (인증 엔드포인트용 - Brute Force 방지)
	authLimiter := limiter.New(limiter.Config{
		Max:        10,              // 최대 10회
		Expiration: 1 * time.Minute, // 1분당
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many requests, please try again later",
			})
		},
	})

	// Auth 라우트 그룹
	authGroup := s.app.Group("/auth")
	authGroup.Post("/register", authLimiter, s.authHandler.Register)
	authGroup.Post("/login", authLimiter, s.authHandler.Login)
	authGroup.Post("/refresh", authLimiter, s.authHandler.RefreshToken)
	authGroup.Post("/logout", auth.AuthMiddleware(s.jwtManager), s.authHandler.Logout)
	authGroup.Get("/me", auth.AuthMiddleware(s.jwtManager), s.authHandler.GetMe)

	// Board 라우트 그룹 (인증 필요)
	boardGroup := s.app.Group("/api/boards", auth.AuthMiddleware(s.jwtManager))
	boardGroup.Post("/", s.boardHandler.CreateBoard)
	boardGroup.Get("/", s.boardHandler.ListBoards)
	boardGroup.Post("/join", s.boardHandler.JoinByCode)
	boardGroup.Get("/:id", s.boardHandler.GetBoard)
	boardGroup.Post("/:id/permissions", s.boardHandler.GrantPermission)
	boardGroup.Delete("/:id", s.boardHandler.DeleteBoard)

	// WebSocket 보드 엔드포인트
	// The handshake is the only authentication gate: token from the query
	// string (browser WebSocket cannot set headers) or the access_token
	// cookie, then a live user row. Rejected connections never upgrade.
	s.app.Get("/ws/board", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		token := c.Query("token")
		if token == "" {
			token = c.Cookies("access_token")
		}
		if token == "" {
			return c.SendStatus(fiber.StatusUnauthorized)
		}

		claims, err := s.jwtManager.ValidateAccessToken(token)
		if err != nil {
			return c.SendStatus(fiber.StatusUnauthorized)
		}

		var user model.User
		if err := s.db.First(&user, "id = ?", claims.UserID).Error; err != nil {
			return c.SendStatus(fiber.StatusUnauthorized)
		}

		c.Locals("userID", user.ID)
		c.Locals("nickname", user.Nickname)
		c.Locals("color", user.Color)

		return c.Next()
	}, websocket.New(s.boardWSHandler.HandleWebSocket, websocket.Config{
		ReadBufferSize:  s.cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: s.cfg.WebSocket.WriteBufferSize,
	}))
}

// Start 서버 시작 (Graceful Shutdown 지원)
func (s *Server) Start() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("🛑 Shutting down server...")
		if err := s.app.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.Fatalf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("🚀 Whiteboard backend starting on %s", s.cfg.Server.Port)
	log.Printf("📡 WebSocket endpoint: ws://localhost%s/ws/board", s.cfg.Server.Port)

	return s.app.Listen(s.cfg.Server.Port)
}

// Shutdown 서버 종료
func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(30 * time.Second)
}

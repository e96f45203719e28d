// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"fmt"
	"time"

	"airwave/internal/cache"
	"airwave/internal/chat"
	"airwave/internal/config"
	"airwave/internal/database"
	"airwave/internal/identity"
	"airwave/internal/middleware"
	"airwave/internal/models"
	"airwave/internal/observability"
	"airwave/internal/repository"
	"airwave/internal/rooms"
	"airwave/internal/service"
	"airwave/internal/sse"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	promMiddleware *fiberprometheus.FiberPrometheus

	userRepo       repository.UserRepository
	messageRepo    repository.MessageRepository
	moderationRepo repository.ModerationRepository
	broadcastRepo  repository.BroadcastRepository

	registry   *rooms.Registry
	resolver   *identity.Resolver
	hub        *chat.Hub
	presence   *chat.Presence
	sseChannel *sse.Channel
	wsLog      *observability.WSLogger

	chatService       *service.ChatService
	moderationService *service.ModerationService
	broadcastService  *service.BroadcastService
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	redisClient := cache.GetClient()

	return NewServerWithDeps(cfg, db, redisClient)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Tests use this with an in-memory database and miniredis.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	middleware.InitMiddleware(cfg)

	userRepo := repository.NewUserRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	moderationRepo := repository.NewModerationRepository(db)
	broadcastRepo := repository.NewBroadcastRepository(db)

	prom := middleware.InitMetrics("airwave-api")

	server := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: prom,
		userRepo:       userRepo,
		messageRepo:    messageRepo,
		moderationRepo: moderationRepo,
		broadcastRepo:  broadcastRepo,
	}

	server.registry = rooms.NewRegistry(broadcastRepo)
	server.resolver = identity.NewResolver(middleware.ParseBearerToken, userRepo)
	server.hub = chat.NewHub()
	server.presence = chat.NewPresence(redisClient, chat.PresenceConfig{})
	server.sseChannel = sse.NewChannel()
	server.wsLog = observability.NewWSLogger("chat handler")

	server.moderationService = service.NewModerationService(moderationRepo)
	server.chatService = service.NewChatService(messageRepo, server.moderationService, cfg.HistoryLimit)
	server.broadcastService = service.NewBroadcastService(broadcastRepo)

	return server, nil
}

// Hub exposes the fan-out engine, mainly for tests and the bootstrap layer.
func (s *Server) Hub() *chat.Hub { return s.hub }

// SSEChannel exposes the notification channel.
func (s *Server) SSEChannel() *sse.Channel { return s.sseChannel }

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	// Context Middleware to propagate Request ID and User ID
	app.Use(middleware.ContextMiddleware())

	// Prometheus Metrics
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Security headers
	app.Use(helmet.New())

	// Structured Logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	// CORS middleware should run before middlewares that can short-circuit (e.g. limiter)
	// so browser clients still receive CORS headers on error responses.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	// Global rate limiting (300 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        300,
		Expiration: 1 * time.Minute,
		// Never rate-limit preflight requests; they should be handled by CORS.
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	// Metrics endpoint for Prometheus
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "Airwave Backend Metrics Dashboard",
	}))

	// Broadcast routes - public browse
	broadcasts := api.Group("/broadcasts")
	broadcasts.Get("/live", s.GetLiveBroadcasts)
	broadcasts.Get("/:identifier/messages", s.GetRoomMessages)
	broadcasts.Get("/:identifier", s.GetBroadcast)

	// Broadcast routes - staff lifecycle
	staffBroadcasts := api.Group("/broadcasts", middleware.AuthRequired, s.StaffRequired())
	staffBroadcasts.Post("/", s.CreateBroadcast)
	staffBroadcasts.Post("/:identifier/go-live", s.GoLive)
	staffBroadcasts.Post("/:identifier/end", s.EndBroadcast)

	// Moderation routes - staff only
	moderation := api.Group("/rooms/:identifier",
		middleware.RateLimit(s.redis, 60, time.Minute, "moderation"),
		middleware.AuthRequired, s.StaffRequired())
	moderation.Get("/bans", s.ListRoomBans)
	moderation.Post("/kick", s.KickFromRoom)
	moderation.Post("/ban", s.BanFromRoom)
	moderation.Post("/mute", s.MuteInRoom)
	moderation.Post("/unban", s.UnbanFromRoom)

	// Notification channel (SSE) - anonymous allowed
	notificationsGroup := api.Group("/notifications")
	notificationsGroup.Get("/connect", s.NotificationsConnect)
	notificationsGroup.Get("/stats", middleware.AuthRequired, s.StaffRequired(), s.NotificationsStats)

	// Chat websocket - anonymous allowed, identity resolved at upgrade
	ws := api.Group("/ws", s.WebSocketUpgrade())
	ws.Get("/chat", s.WebSocketChatHandler())
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"message": "Airwave",
		"version": "1.0.0",
		"status":  overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// StaffRequired returns middleware that rejects non-staff users with 403.
// Must be placed after AuthRequired so that userID is available in locals.
func (s *Server) StaffRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("userID").(uint)

		user, err := s.userRepo.GetByID(c.UserContext(), userID)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusForbidden,
				models.NewForbiddenError("staff access required"))
		}
		if !user.IsStaff() {
			return models.RespondWithError(c, fiber.StatusForbidden,
				models.NewForbiddenError("staff access required"))
		}

		c.Locals("user", user)
		return c.Next()
	}
}

// Shutdown closes the realtime surfaces ahead of the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.presence.Stop()
	return s.hub.Shutdown(ctx)
}

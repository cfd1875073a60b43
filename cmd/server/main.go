package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agency-chat/internal/chat"
	"agency-chat/internal/clock"
	"agency-chat/internal/config"
	"agency-chat/internal/db"
	"agency-chat/internal/media"
	myMiddleware "agency-chat/internal/middleware"
	"agency-chat/internal/presence"
	"agency-chat/internal/project"
	"agency-chat/internal/user"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

func main() {
	// 1. Config & Flags
	configPath := flag.String("config", "", "path to a TOML config file")
	addr := flag.String("addr", "", "http service address (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to Database (Platform Layer)
	database, err := db.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatalf("❌ Failed to connect to DB: %v", err)
	}
	defer database.Close()
	log.Println("✅ Connected to PostgreSQL")

	if err := database.AutoMigrate(ctx); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}
	log.Println("✅ Database Schema Initialized")

	// 3. Connect to Redis (Platform Layer)
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	defer redisClient.Close()
	if _, err := redisClient.Ping(ctx).Result(); err != nil {
		log.Fatalf("❌ Failed to connect to Redis: %v", err)
	}
	log.Println("✅ Connected to Redis")

	clk := clock.Real()

	// 4. Identity
	userRepo := user.NewRepository(database.Conn)
	userService := user.NewService(userRepo, cfg.Auth.JWTSecret)
	userHandler := user.NewHandler(userService)
	authMiddleware := myMiddleware.NewAuthMiddleware(userService)

	// 5. Projects
	projectService := project.NewService(project.NewRepository(database.Conn), clk, logger.With("component", "project"))
	projectHandler := project.NewHandler(projectService)

	// 6. Chat + change feed
	hub := chat.NewHub(redisClient, logger.With("component", "hub"))
	go hub.Run(ctx)
	go hub.SubscribeToRedis(ctx)

	chatService := chat.NewService(chat.NewRepository(database.Conn), projectService, hub, logger.With("component", "chat"))
	chatHandler := chat.NewHandler(hub, chatService, projectService)
	limiter := chat.NewLimiter(cfg.RateLimit.MessagesPerSecond, cfg.RateLimit.Burst)

	// 7. Media bucket
	mediaStore, err := media.NewStore(cfg.Media.Root, cfg.Media.PublicURL, cfg.Media.MaxBytes)
	if err != nil {
		log.Fatalf("❌ Failed to open media bucket: %v", err)
	}
	mediaHandler := media.NewHandler(mediaStore)

	// 8. Presence
	presenceTTL := time.Duration(cfg.Presence.TTLSeconds) * time.Second
	presenceHandler := presence.NewHandler(presence.NewTracker(redisClient, presenceTTL, clk))

	// 9. Define Routes
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Public Routes
	r.Post("/register", userHandler.Register)
	r.Post("/login", userHandler.Login)
	r.Handle(media.URLPrefix+"*", mediaStore.Handler())

	// Protected Routes (Require JWT)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)
		r.Get("/api/users/search", userHandler.SearchUsers)

		r.Group(func(r chi.Router) {
			r.Use(myMiddleware.RequireAdmin)
			r.Get("/api/users", userHandler.ListUsers)
			r.Put("/api/users/{id}/role", userHandler.UpdateRole)
		})

		r.Post("/api/projects", projectHandler.Create)
		r.Get("/api/projects", projectHandler.List)
		r.Patch("/api/projects/{id}/status", projectHandler.Advance)

		r.Get("/api/projects/{id}/messages", chatHandler.GetChatHistory)
		r.With(limiter.Middleware).Post("/api/projects/{id}/messages", chatHandler.SendMessage)
		r.Patch("/api/messages/{id}", chatHandler.EditMessage)
		r.Delete("/api/messages/{id}", chatHandler.DeleteMessage)
		r.Get("/api/messages/unread", chatHandler.UnreadCount)
		r.Get("/api/messages/latest", chatHandler.LatestActivity)

		r.Post("/api/media", mediaHandler.Upload)

		r.Post("/api/presence", presenceHandler.Heartbeat)
		r.Get("/api/presence", presenceHandler.List)
		r.Delete("/api/presence", presenceHandler.Leave)

		// WebSocket (Real-time)
		r.Get("/ws", chatHandler.ServeWs)
	})

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}()

	log.Printf("🚀 Server starting on %s", cfg.Server.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
	log.Println("👋 Server stopped")
}

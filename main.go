package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"ytgate/internal/cache"
	"ytgate/internal/config"
	"ytgate/internal/coordinator"
	"ytgate/internal/handlers"
	"ytgate/internal/logger"
	"ytgate/internal/middleware"
	"ytgate/internal/quota"
	"ytgate/internal/scheduler"
	"ytgate/internal/store"
	"ytgate/internal/user"
	"ytgate/internal/youtube"
)

// Version information, injected at build time
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Load .env if present; real env vars win
	if err := godotenv.Load(); err == nil {
		log.Printf("✅ Loaded configuration from .env")
	}

	envCfg := config.NewEnvConfig()

	if err := logger.Setup(&logger.Config{
		LogDir:     envCfg.LogDir,
		LogFile:    envCfg.LogFile,
		MaxSize:    envCfg.LogMaxSize,
		MaxBackups: envCfg.LogMaxBackups,
		MaxAge:     envCfg.LogMaxAge,
		Compress:   envCfg.LogCompress,
		Console:    envCfg.LogToConsole,
	}); err != nil {
		log.Fatalf("Log setup failed: %v", err)
	}
	defer logger.Close()

	if envCfg.YouTubeAPIKey == "" {
		log.Printf("⚠️ YOUTUBE_API_KEY is not set, upstream requests will fail")
	}

	if err := os.MkdirAll(envCfg.DataDir, 0o755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	st, err := store.Open(filepath.Join(envCfg.DataDir, "ytgate.db"))
	if err != nil {
		log.Fatalf("Storage initialization failed: %v", err)
	}
	defer st.Close()
	log.Printf("✅ Key-value store ready")

	settings, err := config.NewManager(filepath.Join(envCfg.DataDir, "config.json"))
	if err != nil {
		log.Fatalf("Settings initialization failed: %v", err)
	}
	defer settings.Close()
	log.Printf("✅ Settings manager ready (daily quota: %d)", settings.Get().DailyQuotaTotal)

	loc, err := time.LoadLocation(envCfg.ResetTimezone)
	if err != nil {
		log.Printf("⚠️ Unknown reset timezone %q, falling back to UTC", envCfg.ResetTimezone)
		loc = time.UTC
	}

	ledger := quota.NewLedger(st, settings, loc)
	channelCache := cache.New(st, settings.IsPriorityChannel)
	users := user.NewManager(st, settings, loc)

	ytClient := youtube.NewClient(envCfg.YouTubeAPIKey,
		youtube.WithTimeout(time.Duration(envCfg.UpstreamTimeout)*time.Second),
		youtube.WithRateLimit(envCfg.UpstreamRPS, envCfg.UpstreamBurst),
	)

	co := coordinator.New(ledger, channelCache, users, ytClient)
	log.Printf("✅ Request coordinator ready (cache capacity: %d, TTL: %s)", cache.MaxChannels, cache.TTL)

	reset := scheduler.New(ledger, loc)
	reset.Start()
	defer reset.Stop()

	if envCfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// gin.New instead of gin.Default keeps the request log out of the
	// rotating file; Recovery stays
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.SecurityHeadersMiddleware())
	if envCfg.EnableCORS {
		r.Use(middleware.CORSMiddleware(envCfg))
	}

	var limiter *middleware.RateLimiter
	if envCfg.EnableRateLimit {
		limiter = middleware.NewRateLimiter(true,
			time.Duration(envCfg.RateLimitWindow)*time.Second,
			envCfg.RateLimitMaxRequests)
		defer limiter.Stop()
		r.Use(middleware.RateLimitMiddleware(limiter))
		log.Printf("✅ Rate limiter ready (%d requests per %ds)", envCfg.RateLimitMaxRequests, envCfg.RateLimitWindow)
	}

	videoHandler := handlers.NewVideoHandler(co, ledger, ytClient)
	userHandler := handlers.NewUserHandler(users)
	adminHandler := handlers.NewAdminHandler(settings, ledger, channelCache)

	r.GET("/health", handlers.HealthCheck())

	api := r.Group("/api")
	{
		api.GET("/health", handlers.HealthCheckDetailed(envCfg, ledger, channelCache))
		api.GET("/quota", videoHandler.GetQuota)
		api.POST("/search", videoHandler.Search)
		api.POST("/videos", videoHandler.GetVideos)

		api.GET("/history", userHandler.GetHistory)
		api.GET("/favorites", userHandler.GetFavorites)
		api.POST("/favorites", userHandler.AddFavorite)
		api.DELETE("/favorites/:channelId", userHandler.RemoveFavorite)
	}

	admin := r.Group("/api/admin", middleware.AdminAuthMiddleware(envCfg.AdminAccessKey))
	{
		admin.GET("/stats", adminHandler.GetStats)
		admin.GET("/config", adminHandler.GetConfig)
		admin.PATCH("/config", adminHandler.PatchConfig)
		admin.PUT("/priority/:channelId", adminHandler.AddPriority)
		admin.DELETE("/priority/:channelId", adminHandler.RemovePriority)
		admin.PUT("/users/:identityId/block", adminHandler.BlockUser)
		admin.DELETE("/users/:identityId/block", adminHandler.UnblockUser)
		admin.POST("/reset", adminHandler.ResetQuota)
		admin.POST("/cache/clear", adminHandler.ClearCache)
		admin.POST("/cache/cleanup", adminHandler.CleanupCache)
	}

	addr := fmt.Sprintf(":%d", envCfg.Port)
	fmt.Printf("\n🚀 ytgate server started\n")
	fmt.Printf("📌 Version: %s\n", Version)
	if BuildTime != "unknown" {
		fmt.Printf("🕐 Build time: %s\n", BuildTime)
	}
	fmt.Printf("📍 API base: http://localhost:%d/api\n", envCfg.Port)
	fmt.Printf("💚 Health check: GET /health\n")
	fmt.Printf("📊 Environment: %s\n", envCfg.Env)
	if envCfg.AdminAccessKey == "" {
		fmt.Printf("🔑 Admin routes disabled (set ADMIN_ACCESS_KEY to enable)\n")
	}
	fmt.Printf("\n")

	if err := r.Run(addr); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

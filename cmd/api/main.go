package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rollcall/internal/auth"
	"rollcall/internal/checkin"
	"rollcall/internal/config"
	"rollcall/internal/events"
	"rollcall/internal/handler"
	"rollcall/internal/httpmiddleware"
	"rollcall/internal/record"
	"rollcall/internal/roster"
	"rollcall/internal/rotation"
	"rollcall/internal/session"
	"rollcall/internal/store"
	"rollcall/internal/ws"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	var (
		db       *store.DB
		sessions session.Store
		records  record.Store
		enrolled roster.Provider
		fences   checkin.GeofenceProvider
	)

	if cfg.StoreBackend == "memory" {
		sessions = session.NewMemoryStore()
		records = record.NewMemoryStore()
		enrolled = roster.Static{}
		fences = checkin.StaticGeofences{}
		log.Println("store backend: memory (dev mode, state is not durable)")
	} else {
		var err error
		db, err = store.NewDB(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		sessions = session.NewRepository(db.Client)
		records = record.NewRepository(db.Client)
		enrolled = roster.NewRepository(db.Client)
		fences = checkin.NewGeofenceRepository(db.Client)
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	var bus events.Bus
	if cfg.EventBackend == "memory" {
		bus = events.NewMemoryBus()
	} else {
		bus = events.NewRedisBus(redisClient.Client)
	}

	hub := ws.NewHub()
	go hub.Run()

	engine := rotation.New(sessions, hub, cfg.RotateInterval)
	defer engine.Shutdown()

	sessionSvc := session.NewService(sessions, engine)
	recordSvc := record.NewService(records, bus)
	verifier := checkin.NewVerifier(sessions, recordSvc, fences, checkin.Strategy(cfg.VerifyStrategy), cfg.TokenFreshness)

	h := handler.New(sessionSvc, verifier, recordSvc, enrolled, hub, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(securityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db != nil || cfg.StoreBackend == "memory"
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	limiter := httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	authed := r.Group("/v1", auth.RequireAuth(cfg.JWTSigningKey, cfg.JWTIssuer), limiter.GinMiddleware())
	teacher := authed.Group("", auth.RequireRole(auth.RoleTeacher))
	h.Routes(r, authed, teacher)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("starting roll-call api on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced shutdown: %v", err)
	}

	log.Println("server exited")
	return nil
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"playsync/internal/platform/config"
	"playsync/internal/platform/logger"
	"playsync/internal/platform/metrics"
	"playsync/internal/player"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")
	allowedOrigins := config.GetEnv("CORS_ALLOWED_ORIGINS", "*")

	engineDefaults := player.EngineConfig{
		ReadinessFallback: config.GetEnvDurationMS("READINESS_FALLBACK_MS", player.DefaultReadinessFallback),
		Reconciler: player.ReconcilerConfig{
			LeaderDeadband:   config.GetEnvFloat64("LEADER_DEADBAND_SEC", 1.0),
			FollowerDeadband: config.GetEnvFloat64("FOLLOWER_DEADBAND_SEC", 0.5),
			JumpThreshold:    config.GetEnvFloat64("JUMP_THRESHOLD_SEC", 1.0),
			FeedbackInterval: config.GetEnvDurationMS("FEEDBACK_INTERVAL_MS", 100*time.Millisecond),
		},
	}

	log := logger.New(logLevel, logFormat)

	met := metrics.New()
	sessions := player.NewSessionManager(engineDefaults, logger.Component(log, "session"), met)
	h := player.NewHandler(sessions, logger.Component(log, "http"))

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetActiveSessions(sessions.ActiveSessionCount()) }).ServeHTTP(w, r)
	})
	r.Route("/episodes/{episode_id}", func(r chi.Router) {
		r.Post("/", h.CreateSession)
		r.Delete("/", h.EndSession)
		r.Post("/playback", h.SetPlayback)
		r.Get("/snapshot", h.GetSnapshot)
		r.Route("/streams/{stream_id}", func(r chi.Router) {
			r.Post("/ready", h.StreamReady)
			r.Post("/time", h.StreamTime)
			r.Post("/visibility", h.SetVisibility)
		})
	})

	// The viewer runs in a browser on another origin.
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: strings.Split(allowedOrigins, ","),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Session-Token"},
	})

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: corsHandler.Handler(r)}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"readiness_fallback", engineDefaults.ReadinessFallback.String(),
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	sessions.Shutdown()
	log.Info("server stopped")
}

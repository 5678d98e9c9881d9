package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/inkstream/inkstream/internal/ai"
	"github.com/inkstream/inkstream/internal/api"
	"github.com/inkstream/inkstream/internal/auth"
	"github.com/inkstream/inkstream/internal/config"
	"github.com/inkstream/inkstream/internal/hub"
	"github.com/inkstream/inkstream/internal/relay"
	"github.com/inkstream/inkstream/internal/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// Local development keeps secrets in .env; absence is fine in production.
	_ = godotenv.Load()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("inkstream-server starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	level.Set(config.Level(cfg.Server.Log.Level))

	if cfg.Server.Auth.Secret() == "" {
		slog.Error("token signing secret is not set", "env", cfg.Server.Auth.SecretEnv)
		os.Exit(1)
	}

	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"database", cfg.Server.Database.Path,
		"ai_model", cfg.Server.AI.Model,
		"token_ttl", cfg.Server.Auth.TokenTTL,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Config watcher — retunes the log level on file changes.
	go func() {
		if err := config.Watch(ctx, *configPath, func(c *config.Config) {
			level.Set(config.Level(c.Server.Log.Level))
		}); err != nil {
			slog.Warn("config watcher disabled", "err", err)
		}
	}()

	st, err := store.Open(cfg.Server.Database.Path, cfg.Server.Database.BusyTimeout)
	if err != nil {
		slog.Error("failed to open store", "err", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := os.MkdirAll(cfg.Server.Upload.Dir, 0o755); err != nil {
		slog.Error("failed to create upload dir", "dir", cfg.Server.Upload.Dir, "err", err)
		os.Exit(1)
	}

	authSvc := auth.New(cfg.Server.Auth.Secret(), cfg.Server.Auth.TokenTTL)
	rl := relay.New(ai.New(cfg.Server.AI), cfg.Server.AI.MinOutputChars)

	// WebSocket hub — closes all connections on shutdown.
	h := hub.New(st)
	go h.Run(ctx)

	apiHandler := api.New(st, authSvc, rl, h, cfg.Server.Upload.Dir, cfg.Server.CORS.Origins)

	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", apiHandler)
	httpMux.Handle("/metrics", apiHandler)
	httpMux.Handle("/ws", h)
	httpMux.Handle("/static/uploads/",
		http.StripPrefix("/static/uploads/", http.FileServer(http.Dir(cfg.Server.Upload.Dir))))

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: httpMux,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("inkstream-server shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
}

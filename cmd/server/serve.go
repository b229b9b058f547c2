package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/vedran77/ontomatch/internal/config"
	"github.com/vedran77/ontomatch/internal/service"
	"github.com/vedran77/ontomatch/internal/transport/http/handlers"
	"github.com/vedran77/ontomatch/internal/transport/http/middleware"
	"github.com/vedran77/ontomatch/internal/transport/ws"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(rootOpts *rootOptions) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(rootOpts.ConfigPath, migrate)
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply the postgres schema before serving")

	return cmd
}

func runServe(configPath string, migrate bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	initLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := initTracer(ctx, cfg)
	if err != nil {
		slog.Error("failed to init tracer", "error", err)
	} else if tp != nil {
		defer func() { _ = tp.Shutdown(context.Background()) }()
	}

	// Stores
	st, err := openStores(ctx, cfg, migrate)
	if err != nil {
		return err
	}
	defer st.close()

	// Realtime
	adapter, closeRealtime, err := openRealtime(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRealtime()

	// Services
	matchService := service.NewMatchService(st.matches, st.candidates, cfg.MatchMaxRetries)
	chatService := service.NewChatService(st.matches, st.chats)
	messageService := service.NewMessageService(st.messages, chatService, cfg.MessageMaxBytes)
	messageService.SetNotifier(adapter)

	// WebSocket gateway
	hub := ws.NewHub(adapter, matchService)
	go hub.Run(ctx)

	// Routes
	auth := middleware.Auth(cfg.JWTSecret)
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !adapter.Connected() {
			w.Write([]byte(`{"status": "degraded", "realtime": "unavailable"}`))
			return
		}
		w.Write([]byte(`{"status": "ok"}`))
	})
	handlers.NewMatchHandler(matchService, chatService).Register(mux, auth)
	handlers.NewChatHandler(chatService, messageService, cfg.MessageMaxBytes).Register(mux, auth)
	mux.HandleFunc("GET /ws", ws.ServeWS(hub, cfg.JWTSecret))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           middleware.CORS(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", srv.Addr, "store", cfg.StoreDriver)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		slog.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("server exited")
	return nil
}

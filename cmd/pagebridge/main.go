package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/onkernel/pagebridge/cmd/config"
	"github.com/onkernel/pagebridge/lib/bridge"
	"github.com/onkernel/pagebridge/lib/cdphost"
	"github.com/onkernel/pagebridge/lib/coresocket"
	"github.com/onkernel/pagebridge/lib/flags"
	"github.com/onkernel/pagebridge/lib/logger"
)

func main() {
	// Load configuration from environment variables
	config, err := config.Load()
	if err != nil {
		logger.New(os.Stdout, "info").Error("failed to load configuration", "err", err)
		os.Exit(1)
	}
	slogger := logger.New(os.Stdout, config.LogLevel)
	slogger.Info("server configuration", "config", config)

	appFlags, err := flags.Load(config.AppFlags, config.AppFlagsFile)
	if err != nil {
		slogger.Error("failed to load application flags", "err", err)
		os.Exit(1)
	}

	// context cancellation on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	host, err := cdphost.DialWithRetry(ctx, config.CDPURL, config.CDPConnectAttempts, slogger)
	if err != nil {
		slogger.Error("failed to attach to browser page", "err", err)
		os.Exit(1)
	}
	defer host.Close()

	core := bridge.NewCore(appFlags)
	pageBridge := bridge.New(core, host, slogger, bridge.WithScrollWait(config.ScrollDebounce))
	hub := coresocket.NewHub(core, slogger)

	r := newRouter(slogger, pageBridge, host, hub)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Port),
		Handler: r,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return pageBridge.Run(gctx)
	})
	g.Go(func() error {
		return hub.Run(gctx)
	})
	g.Go(func() error {
		slogger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-host.Done():
			return fmt.Errorf("browser page connection lost")
		}
	})
	g.Go(func() error {
		// graceful shutdown
		<-gctx.Done()
		slogger.Info("shutdown signal received")
		return srv.Shutdown(context.Background())
	})

	if err := g.Wait(); err != nil {
		slogger.Error("server stopped with error", "err", err)
		host.Close()
		os.Exit(1)
	}
}

// page is the part of the CDP host the HTTP surface reports on.
type page interface {
	Info() cdphost.Info
	Done() <-chan struct{}
}

func newRouter(slogger *slog.Logger, pageBridge *bridge.Bridge, host page, hub *coresocket.Hub) http.Handler {
	r := chi.NewRouter()
	r.Use(
		chiMiddleware.Logger,
		chiMiddleware.Recoverer,
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ctxWithLogger := logger.AddToContext(r.Context(), slogger)
				next.ServeHTTP(w, r.WithContext(ctxWithLogger))
			})
		},
	)
	r.Handle("/core", hub)
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, statusResponse{
			Bridge:      pageBridge.Status(),
			Page:        host.Info(),
			CoreClients: hub.ClientCount(),
		})
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-host.Done():
			http.Error(w, "browser page connection lost", http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusOK)
		}
	})
	return r
}

type statusResponse struct {
	Bridge      bridge.Status `json:"bridge"`
	Page        cdphost.Info  `json:"page"`
	CoreClients int           `json:"coreClients"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to encode status", http.StatusInternalServerError)
		logger.FromContext(r.Context()).Error("failed to encode status", "err", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

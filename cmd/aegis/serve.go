package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/aegis-health/core/pkg/config"
	"github.com/aegis-health/core/pkg/cowork"
	"github.com/aegis-health/core/pkg/killswitch"
	"github.com/aegis-health/core/pkg/observability"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// runServe starts the platform's HTTP surface: health checks, the
// cowork WebSocket hub, and kill-switch admin endpoints. It blocks
// until SIGINT/SIGTERM, then drains in-flight requests before
// returning.
func runServe(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", ":"+cfg.Port, "listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	provider, err := observability.New(ctx, &observability.Config{
		ServiceName:  "aegis-core",
		OTLPEndpoint: cfg.OTLPEndpoint,
		Enabled:      cfg.OTLPEndpoint != "",
		Insecure:     true,
		SampleRate:   1.0,
		BatchTimeout: 5 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("serve: init observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(shutdownCtx)
	}()

	hub := cowork.NewHub()

	var ksStore killswitch.Store = killswitch.NewMemStore()
	if cfg.RedisAddr != "" {
		ksStore = killswitch.NewRedisStore(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
	}
	engine := killswitch.New(ksStore)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handleHealthz)
	mux.HandleFunc("/ws/cowork/", handleCowork(hub, provider))
	mux.HandleFunc("/admin/killswitch/pause", handleKillswitchPause(engine))
	mux.HandleFunc("/admin/killswitch/resume", handleKillswitchResume(engine))

	srv := &http.Server{
		Addr:    *addr,
		Handler: otelhttp.NewHandler(mux, "aegis.http"),
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "serving", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-sigCtx.Done():
		slog.InfoContext(ctx, "shutting down")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handleCowork upgrades a request to a WebSocket and joins it to the
// session named by the URL's trailing path segment, creating the
// session on first join.
func handleCowork(hub *cowork.Hub, provider *observability.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.URL.Path[len("/ws/cowork/"):]
		if sessionID == "" {
			http.Error(w, "missing session id", http.StatusBadRequest)
			return
		}
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			userID = uuid.NewString()
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			provider.RecordError(r.Context(), err)
			return
		}

		session := hub.GetOrCreate(sessionID)
		wsConn := cowork.NewWSConn(conn)
		connID := uuid.NewString()
		session.Join(connID, userID, wsConn)
		wsConn.ReadLoop(session, connID)
	}
}

func handleKillswitchPause(engine *killswitch.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			AgentType        string `json:"agent_type"`
			By               string `json:"by"`
			Reason           string `json:"reason"`
			ResumeAfterSecs  int64  `json:"resume_after_seconds,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var resumeAfter *time.Duration
		if req.ResumeAfterSecs > 0 {
			d := time.Duration(req.ResumeAfterSecs) * time.Second
			resumeAfter = &d
		}
		if err := engine.Pause(r.Context(), req.AgentType, req.By, req.Reason, resumeAfter); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleKillswitchResume(engine *killswitch.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			AgentType string `json:"agent_type"`
			By        string `json:"by"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := engine.Resume(r.Context(), req.AgentType, req.By); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

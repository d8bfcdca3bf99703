package main

import (
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite3 driver
	"github.com/user/crisis-command/config"
	"github.com/user/crisis-command/internal/ledger"
	"github.com/user/crisis-command/internal/scoring"
	"github.com/user/crisis-command/internal/session"
	"github.com/user/crisis-command/internal/stream"
	"github.com/user/crisis-command/internal/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "./config/config.json", "Path to configuration file")
	flag.Parse()

	// Set up logger
	logger := setupLogger()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	if err := config.ApplyEnv(&cfg); err != nil {
		logger.Fatal("Failed to apply environment overrides", zap.Error(err))
	}

	// Set up scoring collaborator client
	scorer, err := scoring.NewClient(cfg.Scoring, logger)
	if err != nil {
		logger.Fatal("Failed to create scoring client", zap.Error(err))
	}

	// Open session store
	store, err := session.OpenStore(cfg.Store.Driver, cfg.Store.DSN, logger)
	if err != nil {
		logger.Fatal("Failed to open session store", zap.Error(err))
	}

	// Initialize session manager and snapshot stream
	manager := session.NewManager(cfg, scorer, store, logger)
	hub := stream.NewHub(logger)
	manager.SetUpdateHook(hub.Broadcast)

	// Set up HTTP server
	server := setupHTTPServer(cfg, manager, hub, logger)

	// Start HTTP server
	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server stopped", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	waitForShutdown(logger)

	// Perform cleanup
	manager.Shutdown()
}

func setupLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}

func setupHTTPServer(cfg config.Config, manager *session.Manager, hub *stream.Hub, logger *zap.Logger) *http.Server {
	// Create router
	router := chi.NewRouter()
	router.Use(requestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(150 * time.Second))

	// Set up routes
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	// Session lifecycle
	router.Post("/api/sessions", func(w http.ResponseWriter, r *http.Request) {
		var scenario types.Scenario
		if err := json.NewDecoder(r.Body).Decode(&scenario); err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}
		if scenario.Location == "" {
			http.Error(w, "Missing location", http.StatusBadRequest)
			return
		}

		snapshot, err := manager.StartSession(r.Context(), scenario)
		if err != nil {
			logger.Error("Failed to start session",
				zap.String("location", scenario.Location),
				zap.Error(err))
			writeError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(snapshot)
	})

	router.Post("/api/sessions/{session_id}/resume", func(w http.ResponseWriter, r *http.Request) {
		snapshot, err := manager.ResumeSession(r.Context(), chi.URLParam(r, "session_id"))
		if err != nil {
			writeError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(snapshot)
	})

	router.Get("/api/sessions/{session_id}", func(w http.ResponseWriter, r *http.Request) {
		snapshot, err := manager.Snapshot(chi.URLParam(r, "session_id"))
		if err != nil {
			writeError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(snapshot)
	})

	router.Delete("/api/sessions/{session_id}", func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "session_id")
		hub.CloseSession(sessionID)
		if err := manager.CloseSession(sessionID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	// Action submission
	router.Post("/api/sessions/{session_id}/actions", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Action string `json:"action"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}

		sessionID := chi.URLParam(r, "session_id")
		result, err := manager.SubmitAction(r.Context(), sessionID, req.Action)
		if err != nil {
			writeError(w, err)
			return
		}
		if result == nil {
			// Blank submission is deliberately ignored
			w.WriteHeader(http.StatusNoContent)
			return
		}

		snapshot, err := manager.Snapshot(sessionID)
		if err != nil {
			writeError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(struct {
			Result   *types.ScoredResult `json:"result"`
			Snapshot types.Snapshot      `json:"snapshot"`
		}{Result: result, Snapshot: snapshot})
	})

	// AI comparison
	router.Post("/api/sessions/{session_id}/comparison", func(w http.ResponseWriter, r *http.Request) {
		comparison, err := manager.RequestComparison(r.Context(), chi.URLParam(r, "session_id"))
		if err != nil {
			writeError(w, err)
			return
		}
		if comparison == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(comparison)
	})

	// Clock controls
	router.Post("/api/sessions/{session_id}/clock/toggle", func(w http.ResponseWriter, r *http.Request) {
		playing, err := manager.TogglePlay(chi.URLParam(r, "session_id"))
		if err != nil {
			writeError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]bool{"playing": playing})
	})

	router.Post("/api/sessions/{session_id}/clock/suspend", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Suspended bool `json:"suspended"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}
		if err := manager.SetSuspended(chi.URLParam(r, "session_id"), req.Suspended); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	// Threat focus (display only)
	router.Post("/api/sessions/{session_id}/threats/{index}/focus", func(w http.ResponseWriter, r *http.Request) {
		index, err := strconv.Atoi(chi.URLParam(r, "index"))
		if err != nil {
			http.Error(w, "Invalid threat index", http.StatusBadRequest)
			return
		}
		if err := manager.FocusThreat(chi.URLParam(r, "session_id"), index); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	// Snapshot stream
	router.Get("/api/sessions/{session_id}/stream", func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "session_id")
		if _, err := manager.Snapshot(sessionID); err != nil {
			writeError(w, err)
			return
		}
		if err := hub.Subscribe(sessionID, w, r); err != nil {
			logger.Error("Failed to subscribe to snapshot stream",
				zap.String("session_id", sessionID),
				zap.Error(err))
		}
	})

	// Create HTTP server
	return &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}
}

// writeError maps engine errors to HTTP statuses
func writeError(w http.ResponseWriter, err error) {
	var netErr *scoring.NetworkError
	var scoreErr *scoring.ScoringError
	var dataErr *ledger.DataError

	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		http.Error(w, "Session not found", http.StatusNotFound)
	case errors.Is(err, session.ErrSessionEnded):
		http.Error(w, "Session already ended", http.StatusConflict)
	case errors.Is(err, session.ErrSubmissionInFlight):
		http.Error(w, "Another submission is in flight", http.StatusConflict)
	case errors.As(err, &netErr), errors.As(err, &scoreErr), errors.As(err, &dataErr):
		http.Error(w, "Scoring service unavailable, please retry", http.StatusBadGateway)
	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// requestID tags each request with a correlation id
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func waitForShutdown(logger *zap.Logger) {
	// Set up channel for shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	sig := <-sigChan
	logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	logger.Info("Shutting down")
}

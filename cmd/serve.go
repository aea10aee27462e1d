package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/invoice-recon/internal/audit"
	"github.com/sells-group/invoice-recon/internal/model"
	"github.com/sells-group/invoice-recon/internal/monitoring"
	"github.com/sells-group/invoice-recon/internal/pipeline"
	"github.com/sells-group/invoice-recon/internal/resilience"
	"github.com/sells-group/invoice-recon/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the reconciliation HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		if cfg.Monitoring.Enabled {
			checker := monitoring.NewChecker(
				monitoring.NewCollector(env.Store),
				monitoring.NewAlerter(cfg.Monitoring, resilience.NewGuard("monitoring.webhook", cfg.Resilience, resilience.GuardOptions{})),
				cfg.Monitoring,
			)
			go checker.Run(ctx)
		}
		if cfg.Server.SessionIdleMins > 0 {
			go pruneSessions(ctx, env.Pipeline, time.Duration(cfg.Server.SessionIdleMins)*time.Minute)
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           buildMux(env.Pipeline, cfg.Server.AllowedOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// pruneSessions evicts idle session state until ctx is cancelled.
func pruneSessions(ctx context.Context, p *pipeline.Pipeline, idle time.Duration) {
	ticker := time.NewTicker(max(idle/4, time.Minute))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			sessions, files := p.PruneIdle(now.Add(-idle))
			if sessions > 0 || files > 0 {
				zap.L().Debug("pruned idle sessions", zap.Int("sessions", sessions), zap.Int("audit_files", files))
			}
		}
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

type queryRequest struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
}

type approveRequest struct {
	SessionID string `json:"session_id"`
	InvoiceID string `json:"invoice_id"`
}

type confirmRequest struct {
	ConfirmedBy string `json:"confirmed_by"`
}

// buildMux wires the HTTP API around p. An empty origins list allows any
// origin.
func buildMux(p *pipeline.Pipeline, origins []string) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/query", func(w http.ResponseWriter, req *http.Request) {
			var body queryRequest
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			if strings.TrimSpace(body.Query) == "" {
				writeError(w, http.StatusBadRequest, "query is required")
				return
			}
			if body.SessionID == "" {
				body.SessionID = uuid.NewString()
			}

			ans, err := p.Handle(req.Context(), body.SessionID, body.Query)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, ans)
		})

		r.Post("/approve", func(w http.ResponseWriter, req *http.Request) {
			var body approveRequest
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			if body.SessionID == "" {
				writeError(w, http.StatusBadRequest, "session_id is required")
				return
			}

			resp, err := p.Approve(req.Context(), body.SessionID, body.InvoiceID)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, resp)
		})

		r.Post("/approvals/{id}/confirm", func(w http.ResponseWriter, req *http.Request) {
			var body confirmRequest
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}

			a, err := p.Confirm(req.Context(), chi.URLParam(req, "id"), body.ConfirmedBy)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, a)
		})

		r.Get("/sessions/{id}/audit", func(w http.ResponseWriter, req *http.Request) {
			sid := chi.URLParam(req, "id")
			entries, err := p.Trail().Read(sid)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			if entries == nil {
				entries = []model.AuditEntry{}
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"session_id": sid,
				"path":       p.Trail().Path(sid),
				"entries":    entries,
			})
		})

		r.Get("/runs", func(w http.ResponseWriter, req *http.Request) {
			q := req.URL.Query()
			limit := 0
			if s := q.Get("limit"); s != "" {
				n, err := strconv.Atoi(s)
				if err != nil || n < 0 {
					writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
					return
				}
				limit = n
			}

			runs, err := p.Store().ListRuns(req.Context(), store.RunFilter{
				SessionID: q.Get("session_id"),
				InvoiceID: q.Get("invoice_id"),
				Limit:     limit,
			})
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
		})

		r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
			hours := 24
			if s := req.URL.Query().Get("lookback_hours"); s != "" {
				n, err := strconv.Atoi(s)
				if err != nil || n <= 0 {
					writeError(w, http.StatusBadRequest, "lookback_hours must be a positive integer")
					return
				}
				hours = n
			}

			snap, err := monitoring.NewCollector(p.Store()).Collect(req.Context(), hours)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, snap)
		})
	})

	return r
}

// requestLogger logs each request through the global zap logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// writeServiceError maps pipeline and store errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case eris.Is(err, audit.ErrInvalidSession), eris.Is(err, pipeline.ErrConfirmerRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	case eris.Is(err, pipeline.ErrNoApproval):
		writeError(w, http.StatusNotFound, err.Error())
	case eris.Is(err, store.ErrAlreadyConfirmed):
		writeError(w, http.StatusConflict, err.Error())
	default:
		zap.L().Error("http: request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

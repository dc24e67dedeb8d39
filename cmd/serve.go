package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/los-review/internal/config"
	"github.com/sells-group/los-review/internal/model"
	"github.com/sells-group/los-review/internal/pipeline"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve reconciled predictions over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(env.Pipeline, runLimiter(cfg.Server)),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// runLimiter returns the token bucket shared by all prediction requests, or
// nil when runs are unlimited.
func runLimiter(c config.ServerConfig) *rate.Limiter {
	if c.RunsPerSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(c.RunsPerSecond), max(c.RunBurst, 1))
}

// limitRuns rejects requests with 429 once the limiter is exhausted.
func limitRuns(lim *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if lim == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !lim.Allow() {
				w.Header().Set("Retry-After", "1")
				writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "too many pipeline runs"})
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

// buildRouter exposes read-only prediction endpoints. A nil limiter leaves
// pipeline runs unlimited.
func buildRouter(r runner, lim *rate.Limiter) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	router.Group(func(router chi.Router) {
		router.Use(limitRuns(lim))

		router.Get("/predictions", func(w http.ResponseWriter, req *http.Request) {
			res, ok := runMode(w, req, r)
			if !ok {
				return
			}
			w.Header().Set("Content-Type", "text/csv")
			w.Header().Set("X-Run-ID", res.RunID)
			w.WriteHeader(http.StatusOK)
			if err := pipeline.WriteCSV(w, res.Rows); err != nil {
				zap.L().Error("write csv response", zap.Error(err))
			}
		})

		router.Get("/predictions.json", func(w http.ResponseWriter, req *http.Request) {
			res, ok := runMode(w, req, r)
			if !ok {
				return
			}
			rows := res.Rows
			if rows == nil {
				rows = []model.Row{}
			}
			w.Header().Set("X-Run-ID", res.RunID)
			writeJSON(w, http.StatusOK, rows)
		})
	})

	return router
}

// runMode runs the pipeline for the ?mode= query parameter (default single).
// It writes the error response itself and reports whether to continue.
func runMode(w http.ResponseWriter, req *http.Request, r runner) (*pipeline.Result, bool) {
	modeParam := req.URL.Query().Get("mode")
	if modeParam == "" {
		modeParam = string(pipeline.ModeSingle)
	}
	mode, err := pipeline.ParseMode(modeParam)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return nil, false
	}

	res, err := r.Run(req.Context(), mode)
	if err != nil {
		zap.L().Error("pipeline run failed", zap.String("mode", modeParam), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "pipeline run failed"})
		return nil, false
	}
	return res, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("write json response", zap.Error(err))
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

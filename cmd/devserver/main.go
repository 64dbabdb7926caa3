// Command devserver runs the API and the job worker in one process for local
// development. Jobs go through an in-memory queue instead of SNS/SQS.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/app"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/jobs"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/reconcile"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Bootstrap(ctx, "ink-devserver")
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}

	q := jobs.NewMemoryQueue(256)
	o, err := a.Orchestrator(ctx, q)
	if err != nil {
		log.Fatalf("orchestrator: %v", err)
	}
	w := &reconcile.Worker{O: o}
	go w.Run(ctx, q.Jobs())

	api := a.API(o)
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Get("/health", api.ServeHTTP)
	r.Handle("/metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}))
	r.Handle("/ink/*", api)
	r.Handle("/webhooks/*", api)
	r.Post("/internal/sweep", func(w http.ResponseWriter, r *http.Request) {
		rep, err := o.Sweep(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		a.Log.Info("manual sweep", slog.Int("reminded", rep.Reminded), slog.Int("candidates", rep.Candidates))
		w.WriteHeader(http.StatusNoContent)
	})

	srv := &http.Server{
		Addr:              a.Cfg.DevListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	a.Log.Info("devserver listening", slog.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("listen: %v", err)
	}
}

// cmd/circulationd/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"librocirc/internal/calendar"
	"librocirc/internal/catalog"
	"librocirc/internal/circulation"
	"librocirc/internal/config"
	"librocirc/internal/eventlog"
	"librocirc/internal/fines"
	"librocirc/internal/members"
	"librocirc/internal/overdue"
	"librocirc/internal/policy"
	"librocirc/internal/reservations"
	"librocirc/internal/store"
)

func main() {
	cfg := config.Load()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.OTLPEndpoint != "" {
		shutdown, err := setupTracing(ctx, cfg.OTLPEndpoint)
		if err != nil {
			log.Fatal().Err(err).Msg("tracing setup failed")
		}
		defer shutdown(context.Background())
	}

	db, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()

	if err := store.Migrate(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("schema migration failed")
	}

	events := eventlog.NewLog()
	settings := policy.NewService(db)
	cal := calendar.NewService(db)
	memberSvc := members.NewService(db)
	catalogSvc := catalog.NewService(db)
	fineSvc := fines.NewService(db)
	reservationSvc := reservations.NewService(db, events, settings)
	circulationSvc := circulation.NewService(db, settings, cal, events)
	sweeper := overdue.NewSweeper(db, settings, events)

	go sweeper.Run(ctx, cfg.SweepInterval)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)

	router.Route("/api/v1", func(r chi.Router) {
		members.NewHandler(memberSvc).Routes(r)
		catalog.NewHandler(catalogSvc).Routes(r)
		calendar.NewHandler(cal).Routes(r)
		policy.NewHandler(settings).Routes(r)
		fines.NewHandler(fineSvc).Routes(r)
		reservations.NewHandler(reservationSvc).Routes(r)
		circulation.NewHandler(circulationSvc).Routes(r)
		overdue.NewHandler(sweeper).Routes(r)
	})
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		log.Warn().Msg("shutting down...")
		cancel()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown failed")
		}
	}()

	log.Info().Str("addr", cfg.Addr).Dur("sweep_interval", cfg.SweepInterval).Msg("starting circulation service")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func setupTracing(ctx context.Context, endpoint string) (func(context.Context) error, error) {
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}
	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(provider)
	return provider.Shutdown, nil
}

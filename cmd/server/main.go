// Command server runs the meal journal API: callable functions, board and
// feed reads, the feed event stream and photo uploads.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/go-meal-backend/internal/auth"
	"github.com/tbourn/go-meal-backend/internal/blob"
	"github.com/tbourn/go-meal-backend/internal/config"
	"github.com/tbourn/go-meal-backend/internal/feed"
	"github.com/tbourn/go-meal-backend/internal/fsstore"
	httpapi "github.com/tbourn/go-meal-backend/internal/http"
	"github.com/tbourn/go-meal-backend/internal/notify"
	"github.com/tbourn/go-meal-backend/internal/observability"
	"github.com/tbourn/go-meal-backend/internal/repo"
	"github.com/tbourn/go-meal-backend/internal/sysutil"
)

var version = "dev"

const (
	shutdownTimeout = 10 * time.Second
	purgeInterval   = time.Hour
)

func main() {
	// .env is optional; real deployments use the environment.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	sysutil.SetupLogger(os.Stderr, sysutil.LoggerOptions{
		Level:   cfg.LogLevel,
		Pretty:  cfg.LogPretty,
		Service: sysutil.FirstNonEmpty(cfg.OTEL.ServiceName, "meal-api"),
		Version: version,
	})
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
	log.Info().Msg("server stopped")
}

func run(ctx context.Context, cfg config.Config) error {
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version,
		attribute.String("store.backend", cfg.Store.Backend))
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	b, jobs, closeStore, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	r := gin.New()
	httpapi.RegisterRoutes(r, b, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("version", version).
			Str("store", cfg.Store.Backend).Str("blob", cfg.Blob.Backend).
			Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	for _, job := range jobs {
		g.Go(func() error { return job(gctx) })
	}
	return g.Wait()
}

// openBackends selects the document store, blob store, notifier and feed
// source from cfg. jobs are background loops tied to the server lifetime.
func openBackends(ctx context.Context, cfg config.Config) (httpapi.Backends, []func(context.Context) error, func(), error) {
	b := httpapi.Backends{Verifier: auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)}
	var (
		jobs       []func(context.Context) error
		closeStore = func() {}
	)

	switch cfg.Store.Backend {
	case config.StoreFirestore:
		st, err := fsstore.Open(ctx, cfg.Store.FirestoreProjectID)
		if err != nil {
			return b, nil, nil, fmt.Errorf("firestore: %w", err)
		}
		b.Store, b.Feed = st, st
		closeStore = func() { _ = st.Close() }
	default:
		db, err := repo.Open(cfg.Store)
		if err != nil {
			return b, nil, nil, fmt.Errorf("open db: %w", err)
		}
		if err := repo.AutoMigrate(db); err != nil {
			return b, nil, nil, fmt.Errorf("migrate: %w", err)
		}
		st := repo.NewStore(db)
		b.Store = st
		b.Feed = &feed.Poller{Lister: st, Interval: cfg.FeedPollInterval}
		jobs = append(jobs, func(ctx context.Context) error {
			purgeIdempotency(ctx, st)
			return nil
		})
		closeStore = func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
	}

	if cfg.Blob.Backend != config.BlobNone {
		bs, err := blob.Open(ctx, cfg.Blob)
		if err != nil {
			closeStore()
			return b, nil, nil, fmt.Errorf("blob: %w", err)
		}
		b.Blob = bs
	}
	if m := notify.New(cfg.Mail); m != nil {
		b.Notifier = m
	} else {
		log.Info().Msg("moderator e-mail disabled")
	}
	return b, jobs, closeStore, nil
}

// purgeIdempotency drops expired idempotency records until ctx ends.
func purgeIdempotency(ctx context.Context, st *repo.Store) {
	t := time.NewTicker(purgeInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpiredIdempotency(ctx, st.DB, now.UTC())
			if err != nil {
				log.Warn().Err(err).Msg("idempotency purge failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("rows", n).Msg("idempotency records purged")
			}
		}
	}
}

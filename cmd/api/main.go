package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"noteboard/api/internal/app"
	"noteboard/api/internal/board"
	"noteboard/api/internal/channel"
	"noteboard/api/internal/config"
	"noteboard/api/internal/identity"
	"noteboard/api/internal/search"
	"noteboard/api/internal/session"
	"noteboard/api/internal/store"
)

type sessionRegistry interface {
	SaveSession(context.Context, string, session.Record, time.Time) error
	LookupSession(context.Context, string) (session.Record, error)
	RevokeSession(context.Context, string) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var noteStore board.NoteStore
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("database connection failed: %v", err)
		}
		defer db.Close()
		if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
			log.Fatalf("migrations failed: %v", err)
		}
		noteStore = store.NewPostgresStore(db)
	} else {
		log.Printf("DATABASE_URL not set, notes are kept in memory")
		noteStore = store.NewMemoryStore()
	}

	var sessions sessionRegistry
	var notifier channel.Notifier = channel.NopNotifier{}
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisStore.Close()
		sessions = redisStore
		notifier = channel.NewRedisNotifier(redisStore.Client(), cfg.Channel)
		log.Printf("Using Redis for sessions and change notices on %q", cfg.Channel)
	} else {
		sessions = session.NewMemoryStore()
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchService := search.NewService(meiliClient)
	defer searchService.Close()

	notes := board.New(noteStore,
		board.WithNotifier(notifier),
		board.WithSearch(searchService),
	)
	if err := notes.Start(ctx); err != nil {
		log.Fatalf("loading notes failed: %v", err)
	}

	identities := identity.NewProvider([]byte(cfg.SessionSecret), cfg.SessionTTL, sessions)
	httpServer := app.NewHTTPServer(notes, identities, cfg.CORSOrigin, cfg.WSPingPeriod)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return notes.Run(gctx)
	})
	g.Go(func() error {
		log.Printf("Noteboard API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		// Hijacked sync connections are not tracked by Shutdown; closing the
		// board ends them.
		notes.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("server stopped: %v", err)
	}
}

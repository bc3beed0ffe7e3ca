package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	router "github.com/dkmln/parley/internal/adapters/http"
	"github.com/dkmln/parley/internal/adapters/ws"
	"github.com/dkmln/parley/internal/app"
	"github.com/dkmln/parley/internal/blob"
	"github.com/dkmln/parley/internal/config"
	"github.com/dkmln/parley/internal/core"
	"github.com/dkmln/parley/internal/domain"
	"github.com/dkmln/parley/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	db, err := gorm.Open(sqlite.Open(cfg.DatabasePath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DatabasePath).Msg("open database")
	}
	st := store.NewGormStore(db)
	if err := st.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	blobs, err := openBlobStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("open blob store")
	}

	registry := app.NewRegistry()
	fanout := app.NewFanout(registry)
	dispatch := app.NewDispatcher(fanout, registry)
	unread := app.NewUnread(st, st)

	// Expired typing windows are pushed straight through the dispatcher.
	typing := app.NewTyping(cfg.TypingWindow, func(roomID domain.RoomID, uid domain.UserID) {
		dispatch.Apply([]app.Notification{app.NotifyRoom(roomID, core.Typing(roomID, uid, false))})
	})

	coord := &app.Coordinator{
		Registry: registry,
		Fanout:   fanout,
		Messages: st,
		Rooms:    st,
		Users:    st,
		Unread:   unread,
		Typing:   typing,
		Blobs:    blobs,
	}

	wsCtl := ws.NewController(coord, dispatch, cfg)
	r := router.SetupRouter(ctx, cfg, router.Deps{
		Coord: coord,
		WS:    wsCtl,
		Users: st,
		Rooms: st,
		Msgs:  st,
		Blobs: blobs,
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Parley server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}

func openBlobStore(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	switch cfg.BlobBackend {
	case "nats":
		return blob.NewJetStreamStore(ctx, cfg.NatsURL, cfg.NatsBucket)
	default:
		return blob.NewFSStore(cfg.BlobDir)
	}
}

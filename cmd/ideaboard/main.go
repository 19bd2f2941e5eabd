package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/ideaboard/internal/auth"
	"github.com/gosuda/ideaboard/internal/board"
	"github.com/gosuda/ideaboard/internal/config"
	"github.com/gosuda/ideaboard/internal/realtime"
	"github.com/gosuda/ideaboard/internal/server"
	"github.com/gosuda/ideaboard/internal/store/memory"
	"github.com/gosuda/ideaboard/internal/store/postgres"
	redisstore "github.com/gosuda/ideaboard/internal/store/redis"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg.Log.Logger()

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	checks := make(map[string]server.Pinger)

	store, closeStore, err := openStore(ctx, cfg, checks)
	if err != nil {
		return err
	}
	defer closeStore()

	bus, closeBus, err := openBus(ctx, cfg, checks)
	if err != nil {
		return err
	}
	defer closeBus()

	hub := realtime.NewHub(bus, realtime.Options{
		Channel:           redisstore.EventsChannel(cfg.Redis.Namespace),
		DefaultRoom:       cfg.Realtime.Room,
		HeartbeatInterval: cfg.Realtime.HeartbeatInterval,
		HeartbeatTimeout:  cfg.Realtime.HeartbeatTimeout,
		ReplaySize:        cfg.Realtime.ReplaySize,
		SendBuffer:        cfg.Realtime.SendBuffer,
		OriginPatterns:    originHosts(cfg.Server.CORSOrigins),
	})
	hubDone := make(chan error, 1)
	go func() {
		hubDone <- hub.Run(ctx)
	}()

	authSvc := auth.NewService(store.Users(), cfg.JWT.Secret, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)
	boardSvc := board.NewService(store, hub)

	opts := server.Options{Checks: checks}
	if cfg.Server.WebDir != "" {
		opts.Assets = os.DirFS(cfg.Server.WebDir)
	}
	srv := server.New(ctx, cfg, boardSvc, authSvc, hub, opts)

	serverDone := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Str("store", cfg.Store.Driver).Msg("starting server")
		serverDone <- srv.Start(ctx)
	}()

	select {
	case <-ctx.Done():
	case err := <-hubDone:
		if err != nil {
			log.Error().Err(err).Msg("realtime hub stopped")
		}
		cancel()
	case err := <-serverDone:
		if err != nil {
			log.Error().Err(err).Msg("server error")
		}
		cancel()
	}
	log.Info().Msg("shutting down")

	// The hub shares ctx, so open streams are already closing.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownPeriod)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	log.Info().Msg("stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, checks map[string]server.Pinger) (board.Store, func(), error) {
	if cfg.Store.Driver != config.StorePostgres {
		log.Warn().Msg("using in-memory store; board state is lost on restart")
		s := memory.New()
		return s, s.Close, nil
	}

	if cfg.Database.MaxConns > math.MaxInt32 {
		return nil, nil, fmt.Errorf("database max_conns %d out of int32 range", cfg.Database.MaxConns)
	}

	s, err := postgres.New(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns)) //nolint:gosec // bounds checked above
	if err != nil {
		return nil, nil, err
	}
	if cfg.Store.Migrate {
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, nil, err
		}
	}
	checks["postgres"] = s
	return s, s.Close, nil
}

func openBus(ctx context.Context, cfg *config.Config, checks map[string]server.Pinger) (realtime.Bus, func(), error) {
	if cfg.Redis.Addr == "" {
		log.Info().Msg("IDEABOARD_REDIS_ADDR not set; events stay on this node")
		return realtime.NewLocalBus(), func() {}, nil
	}

	var (
		ps  *redisstore.PubSub
		err error
	)
	if strings.HasPrefix(cfg.Redis.Addr, "redis://") || strings.HasPrefix(cfg.Redis.Addr, "rediss://") {
		ps, err = redisstore.NewFromURL(ctx, cfg.Redis.Addr)
	} else {
		ps, err = redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	}
	if err != nil {
		return nil, nil, err
	}
	checks["redis"] = ps
	return ps, func() {
		if err := ps.Close(); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Msg("closing redis")
		}
	}, nil
}

// originHosts turns CORS origins into the host patterns the WebSocket
// handshake matches against.
func originHosts(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
			continue
		}
		out = append(out, o)
	}
	return out
}

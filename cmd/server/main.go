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
	"github.com/lalith-99/campusconnect/internal/api"
	"github.com/lalith-99/campusconnect/internal/chat"
	"github.com/lalith-99/campusconnect/internal/config"
	"github.com/lalith-99/campusconnect/internal/connection"
	"github.com/lalith-99/campusconnect/internal/db"
	"github.com/lalith-99/campusconnect/internal/observ"
	"github.com/lalith-99/campusconnect/internal/realtime"
	"github.com/lalith-99/campusconnect/internal/recommend"
	"github.com/lalith-99/campusconnect/internal/repository"
	"github.com/lalith-99/campusconnect/internal/repository/memory"
	"github.com/lalith-99/campusconnect/internal/repository/postgres"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// stores is one Entity Store seen through each repository port.
type stores struct {
	users     repository.UserRepository
	requests  repository.RequestRepository
	chats     repository.ChatRepository
	snapshots repository.SnapshotReader
	health    repository.Pinger
	close     func()
}

func run() error {
	// ---------------------------------------------------------------
	// 1. Load config
	// ---------------------------------------------------------------
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// ---------------------------------------------------------------
	// 2. Create logger
	// ---------------------------------------------------------------
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---------------------------------------------------------------
	// 3. Open the entity store
	// ---------------------------------------------------------------
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	// ---------------------------------------------------------------
	// 4. Realtime fan-out
	//
	// The Hub holds this instance's websockets. With the redis bus,
	// publishes go through Redis and every instance's bus feeds its
	// own Hub.
	// ---------------------------------------------------------------
	hub := realtime.NewHub(logger)
	var (
		publisher realtime.Publisher = hub
		bus       *realtime.RedisBus
	)
	if cfg.RealtimeBus == config.RealtimeBusRedis {
		client, err := realtime.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer client.Close()
		bus = realtime.NewRedisBus(client, hub, logger)
		publisher = bus
	}

	// ---------------------------------------------------------------
	// 5. Core services and routes
	// ---------------------------------------------------------------
	relay := chat.NewRelay(st.chats, st.users, publisher, logger, chat.WithPublishTimeout(cfg.PublishTimeout))
	router := api.NewRouter(api.Deps{
		Connections: connection.NewService(st.users, st.requests, logger),
		Recommender: recommend.NewEngine(st.snapshots, logger),
		Chats:       relay,
		Users:       st.users,
		Store:       st.health,
		Hub:         hub,
		JWTSecret:   cfg.JWTSecret,
		Logger:      logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ---------------------------------------------------------------
	// 6. Run until a signal or a component fails
	// ---------------------------------------------------------------
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting campusconnect",
			zap.String("port", cfg.Port),
			zap.String("env", cfg.Env),
			zap.String("store", cfg.StoreDriver),
			zap.String("bus", cfg.RealtimeBus),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if bus != nil {
		g.Go(func() error {
			return bus.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		hub.Close()
		relay.Wait()
		return err
	})

	return g.Wait()
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		logger.Warn("using in-memory store; data is lost on exit")
		m := memory.New()
		return &stores{
			users:     m.Users(),
			requests:  m.Requests(),
			chats:     m.Chats(),
			snapshots: m,
			health:    m,
			close:     func() {},
		}, nil
	}

	database, err := db.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	pool := database.Pool()
	return &stores{
		users:     postgres.NewUserStore(pool),
		requests:  postgres.NewRequestStore(pool),
		chats:     postgres.NewChatStore(pool),
		snapshots: postgres.NewSnapshotStore(pool),
		health:    database,
		close:     database.Close,
	}, nil
}

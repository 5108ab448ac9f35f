package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ifrs17-training-service/internal/app"
	"ifrs17-training-service/internal/config"
	"ifrs17-training-service/internal/infra/memory"
	pginfra "ifrs17-training-service/internal/infra/postgres"
	redisinfra "ifrs17-training-service/internal/infra/redis"
	transport "ifrs17-training-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the training server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	guestTTL := config.Duration(cfg.Redis.GuestTTL, 24*time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var loader memory.CatalogLoader = memory.NewStaticCatalogLoader(memory.DefaultCatalog())
	if pool != nil {
		loader = pginfra.NewCatalogLoader(pool)
	}
	catalogTTL := config.Duration(cfg.Catalog.TTL, 10*time.Minute)
	catalog := memory.NewCatalogRepository(loader, catalogTTL)

	// Local tier is always in-process; Redis, when configured, is the
	// remote tier and the cross-restart home of authenticated progress.
	local := memory.NewSnapshotStore()
	var remote app.SnapshotStore
	if redisClient != nil {
		remote = redisinfra.NewSnapshotStore(redisClient, guestTTL)
	}
	gateway := app.NewGateway(local, remote)

	var sessions app.SessionRegistry
	if redisClient != nil {
		sessions = redisinfra.NewSessionRegistry(redisClient, guestTTL)
	} else {
		sessions = memory.NewSessionRegistry()
	}

	var results app.ResultSink
	var leaderboard transport.LeaderboardSource
	if pool != nil {
		store := pginfra.NewResultStore(pool)
		results = store
		leaderboard = store
	}

	opts := app.Options{
		FeedbackDelay:    config.Duration(cfg.Game.FeedbackDelay, 7*time.Second),
		AuthPromptDelay:  config.Duration(cfg.Game.AuthPromptDelay, 3*time.Second),
		AutoSaveInterval: config.Duration(cfg.Game.AutoSaveInterval, 30*time.Second),
		DeferredAuth:     cfg.DeferredAuth(),
	}

	service := app.NewGameService(sessions, catalog, gateway, results, app.LogTelemetry{}, opts)
	wsHandler := transport.NewWSHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	if leaderboard != nil {
		mux.Handle("/leaderboard", transport.NewLeaderboardHandler(leaderboard))
	}

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting training service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	gateway.Flush()
	return server.Shutdown(shutdownCtx)
}

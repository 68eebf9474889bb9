package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"meterbridge/internal/cloud"
	"meterbridge/internal/coordinator"
	"meterbridge/internal/handlers"
	"meterbridge/internal/logger"
	"meterbridge/internal/repository"
	"meterbridge/internal/repository/db"
	"meterbridge/internal/retry"
	"meterbridge/internal/schedule"
	"meterbridge/internal/server"
	"meterbridge/internal/service"

	"github.com/spf13/viper"
)

const tokenSaveTimeout = 5 * time.Second

func main() {
	// load config.yml before the logger so the level is configurable
	if err := loadConfig(); err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}

	// init logger
	log := logger.Get(viper.GetString("log.level"))

	// open DB
	sqlDB, err := openDB(log)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Fatalw("failed to close sqlite", "err", cerr)
		}
	}()

	// wire dependencies
	repos := repository.NewRepository(sqlDB)
	cloudClient := buildCloudClient(repos, log)
	coord := buildCoordinator(cloudClient, repos, log)
	services := service.NewService(coord, repos, authConfig(), log)
	apiHandler := handlers.NewHandler(services, log)

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// start the refresh loop
	go coord.Run(ctx)

	// start HTTP server
	srv := &server.Server{}
	runHTTPServer(srv, viper.GetString("port"), apiHandler, log)

	// graceful shutdown
	waitForShutdown(cancel, srv, log)
}

func loadConfig() error {
	viper.AddConfigPath("configs") // configs/config.yml
	viper.SetConfigName("config")
	return viper.ReadInConfig()
}

// openDB initializes the SQLite database using configuration.
func openDB(log *logger.Logger) (*sql.DB, error) {
	dbPath := viper.GetString("db.path")
	if dbPath == "" {
		log.Infow("db.path not set in config; using default file", "default", "bridge.db")
		dbPath = "bridge.db"
	}
	return db.InitDB(dbPath)
}

// buildCloudClient seeds the client from any persisted token and wires the
// sink that keeps the stored token current across grants and refreshes.
func buildCloudClient(repos *repository.Repository, log *logger.Logger) *cloud.HTTPClient {
	loadCtx, cancel := context.WithTimeout(context.Background(), tokenSaveTimeout)
	defer cancel()

	tok, err := repos.Tokens.Load(loadCtx)
	if err != nil {
		log.Warnw("failed to load persisted cloud token; starting unauthenticated", "err", err)
		tok = nil
	}

	return cloud.NewHTTPClient(cloud.Config{
		BaseURL:  viper.GetString("cloud.base_url"),
		Username: viper.GetString("cloud.username"),
		Password: viper.GetString("cloud.password"),
		Token:    tok,
		OnToken: func(t cloud.Token) {
			ctx, cancel := context.WithTimeout(context.Background(), tokenSaveTimeout)
			defer cancel()
			if err := repos.Tokens.Save(ctx, t); err != nil {
				log.Errorw("failed to persist cloud token", "err", err)
			}
		},
	})
}

// buildCoordinator assembles the planner, retry policy and snapshot recorder
// around the cloud client.
func buildCoordinator(client cloud.Client, repos *repository.Repository, log *logger.Logger) *coordinator.Coordinator {
	policy := retry.NewPolicy(log)
	if v := viper.GetInt("retry.max_attempts"); v > 0 {
		policy.MaxAttempts = v
	}
	if v := viper.GetDuration("retry.timeout"); v > 0 {
		policy.Timeout = v
	}
	if v := viper.GetDuration("retry.delay"); v > 0 {
		policy.Delay = v
	}

	planner := schedule.NewPlanner(
		time.Duration(viper.GetInt("schedule.period_minutes"))*time.Minute,
		time.Duration(viper.GetInt("schedule.drift_minutes"))*time.Minute,
	)

	recorder := service.NewRecorderService(repos.Readings, log)

	return coordinator.New(coordinator.Config{
		Client:     client,
		Planner:    planner,
		Policy:     policy,
		Log:        log,
		OnSnapshot: recorder.RecordSnapshot,
	})
}

func authConfig() service.AuthConfig {
	return service.AuthConfig{
		SigningKey: viper.GetString("auth.signing_key"),
		TokenTTL:   viper.GetDuration("auth.token_ttl"),
	}
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		if port == "" {
			port = "8080"
		}
		if err := srv.Run(port, handler.InitRoutes()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	// stop background goroutines
	cancel()

	// allow in-flight requests to complete
	ctx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalw("server forced to shutdown", "err", err)
	}
}

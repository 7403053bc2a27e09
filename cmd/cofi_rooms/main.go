package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/rx3lixir/cofi_rooms/internal/config"
	httpserver "github.com/rx3lixir/cofi_rooms/internal/http_server"
	"github.com/rx3lixir/cofi_rooms/internal/room"
	"github.com/rx3lixir/cofi_rooms/internal/session"
	"github.com/rx3lixir/cofi_rooms/internal/sound"
	"github.com/rx3lixir/cofi_rooms/internal/storage/postgres"
	redisstore "github.com/rx3lixir/cofi_rooms/internal/storage/redis"
	"github.com/rx3lixir/cofi_rooms/internal/storage/s3"
	"github.com/rx3lixir/cofi_rooms/pkg/logger"
)

func main() {
	configPath := pflag.StringP("config", "c", "internal/config/config.yaml", "path to the yaml config")
	pflag.Parse()

	// Initializing and validating config
	cm, err := config.NewConfigManager(*configPath)
	if err != nil {
		fmt.Printf("Error getting config file: %v\n", err)
		os.Exit(1)
	}
	c := cm.GetConfig()
	if err := c.Validate(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initializing logger
	log := logger.Must(logger.New(logger.Config{
		Env:       c.GeneralParams.Env,
		Level:     c.GeneralParams.LogLevel,
		AddSource: false,
	}))

	log.Info(
		"Config loaded successfully!",
		"env", c.GeneralParams.Env,
		"http_server_port", c.HttpServerParams.Port,
		"http_server_address", c.HttpServerParams.Address,
		"storage", c.StorageParams.Driver,
		"redis", c.RedisParams.Enabled,
		"s3", c.S3Params.Enabled,
	)

	// Global context with cancel
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checks := map[string]httpserver.HealthCheck{}

	// Room store
	var store room.Store
	switch c.StorageParams.Driver {
	case "postgres":
		pool, err := postgres.NewPool(ctx, c.MainDBParams.GetDSN())
		if err != nil {
			log.Error(
				"Failed to create postgres pool",
				"error", err,
				"db", c.MainDBParams.Name,
			)
			os.Exit(1)
		}
		defer pool.Close()

		if c.StorageParams.Migrate {
			if err := postgres.Migrate(ctx, pool); err != nil {
				log.Error("Failed to apply schema", "error", err)
				os.Exit(1)
			}
		}

		log.Info(
			"Database connection established",
			"db", c.MainDBParams.Name,
			"host", c.MainDBParams.Host,
		)

		store = room.NewPostgresStore(pool)
		checks["postgres"] = pool.Ping
	default:
		log.Warn("Using in-memory room store, state is lost on restart")
		store = room.NewMemoryStore()
	}

	presence, err := room.NewPresence(c.PresenceParams.OnlineTimeout, c.PresenceParams.StaleTimeout)
	if err != nil {
		log.Error("Invalid presence settings", "error", err)
		os.Exit(1)
	}

	roomService := room.NewService(store, presence, log.Component("room"))

	sweeper, err := room.NewSweeper(
		roomService,
		c.PresenceParams.CleanupInterval,
		c.HttpServerParams.RequestTimeout,
		log.Component("sweeper"),
	)
	if err != nil {
		log.Error("Failed to schedule stale sweeper", "error", err)
		os.Exit(1)
	}

	// Sessions and rate limiting live in Redis when it is enabled
	var sessionStore session.Store = session.NewMemoryStore()
	var limiter *httpserver.RateLimiter

	if c.RedisParams.Enabled {
		rdb, err := redisstore.NewClient(ctx, c.RedisParams.Address, c.RedisParams.Password, c.RedisParams.DB)
		if err != nil {
			log.Error("Failed to connect to redis", "error", err, "addr", c.RedisParams.Address)
			os.Exit(1)
		}
		defer rdb.Close()

		sessionStore = session.NewRedisStore(rdb, c.RedisParams.SessionKey)
		if c.RateLimitParams.Enabled {
			limiter = httpserver.NewRateLimiter(
				rdb,
				c.RateLimitParams.Requests,
				c.RateLimitParams.Window,
				log.Component("ratelimit"),
			)
		}
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }

		log.Info("Redis connection established", "addr", c.RedisParams.Address)
	}

	// Sound urls are presigned when object storage is enabled
	var presigner sound.Presigner
	if c.S3Params.Enabled {
		client, err := s3.Connect(
			ctx,
			c.S3Params.Endpoint,
			c.S3Params.AccessKeyID,
			c.S3Params.SecretAccessKey,
			c.S3Params.BucketName,
			c.S3Params.UseSSL,
		)
		if err != nil {
			log.Error("Failed to init object storage", "error", err, "endpoint", c.S3Params.Endpoint)
			os.Exit(1)
		}
		presigner = sound.NewMinIOStore(client, c.S3Params.BucketName)

		log.Info("Object storage ready", "bucket", c.S3Params.BucketName)
	}

	// Creates HTTP server
	HTTPserver := httpserver.New(
		c.HttpServerParams.GetAddress(),
		httpserver.Deps{
			Rooms: room.NewHandler(roomService, log.Component("room_handler"), c.HttpServerParams.RequestTimeout),
			Sessions: session.NewHandler(
				session.NewTracker(sessionStore, c.PresenceParams.SessionTimeout),
				log.Component("session_handler"),
				c.HttpServerParams.RequestTimeout,
			),
			Sounds:         sound.NewHandler(presigner, c.S3Params.URLExpiry, log.Component("sound_handler")),
			Limiter:        limiter,
			AllowedOrigins: c.HttpServerParams.AllowedOrigins,
			HealthChecks:   checks,
		},
		httpserver.Timeouts{
			Read:  c.HttpServerParams.ReadTimeout,
			Write: c.HttpServerParams.WriteTimeout,
			Idle:  c.HttpServerParams.IdleTimeout,
		},
		log.Component("http"),
	)

	sweeper.Start()

	serverErrors := make(chan error, 1)

	go func() {
		serverErrors <- HTTPserver.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we recieve a signal or error
	select {
	case err := <-serverErrors:
		log.Error("Server error", "error", err)

	case sig := <-shutdown:
		log.Info("Shutdown signal received", "signal", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	log.Info("Shutting down HTTP server...")
	if err := HTTPserver.Shutdown(shutdownCtx); err != nil {
		log.Error("Graceful shutdown failed", "error", err)
	}

	sweeper.Stop(shutdownCtx)
}

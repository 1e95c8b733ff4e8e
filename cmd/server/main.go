/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the availability and pricing engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, then environment)
  2. Initialize logging
  3. Open the store (SQLite when a path is set, memory otherwise)
  4. Wrap inventory reads with the Redis cache when configured
  5. Build the engine, the API handler and the router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port, overrides SERVER_PORT
  -db      SQLite database path, overrides DB_SQLITE_PATH
           Use ":memory:" for an in-memory SQLite database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests (SERVER_SHUTDOWN_GRACE_PERIOD_SECONDS)
  3. Close the store and the Redis connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/rates.db"

  # Run fully in memory on a different port
  ./server -port=3000

  # Cache inventory in Redis
  CACHE_REDIS_PRIMARY_HOST=localhost ./server

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pentouz/rate-engine/api"
	"github.com/pentouz/rate-engine/booking"
	"github.com/pentouz/rate-engine/config"
	"github.com/pentouz/rate-engine/logger"
	"github.com/pentouz/rate-engine/pricing"
	"github.com/pentouz/rate-engine/pricing/store"
	"github.com/pentouz/rate-engine/store/rediscache"
	"github.com/pentouz/rate-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 0, "HTTP server port (overrides SERVER_PORT)")
	dbPath := flag.String("db", "", "SQLite database path (overrides DB_SQLITE_PATH)")
	flag.Parse()

	conf, err := config.Load(".env")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if *port != 0 {
		conf.Server.Port = *port
	}
	if *dbPath != "" {
		conf.DB.SQLite.Path = *dbPath
	}

	logger.InitLogger(conf.IsDevelopment())
	logger.SetLogLevel(conf.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize store
	var st api.Store
	if path := conf.DB.SQLite.Path; path != "" {
		db, err := sqlite.New(path)
		if err != nil {
			log.Fatal().Err(err).Str("path", path).Msg("failed to initialize database")
		}
		defer db.Close()
		st = db
		log.Info().Str("path", path).Msg("using sqlite store")
	} else {
		st = store.NewMemory()
		log.Info().Msg("using in-memory store")
	}

	// Inventory reads go through Redis when it is configured
	var inventory pricing.InventoryProvider = st
	var cache *rediscache.InventoryCache
	if addr := conf.RedisAddr(); addr != "" {
		r := conf.Cache.Redis.Primary
		client, err := rediscache.Connect(ctx, rediscache.Options{Addr: addr, Password: r.Password, DB: r.DB})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to inventory cache")
		}
		defer client.Close()
		cache = rediscache.NewInventoryCache(client, st, conf.CacheTTL())
		inventory = cache
	}

	converter, err := conf.Converter()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid FX rates")
	}

	engine := booking.NewEngine(booking.Deps{
		Catalog:   st,
		Inventory: inventory,
		RatePlans: st,
		Promos:    st,
		Converter: converter,
	}, booking.Config{
		TaxRate:       conf.Pricing.TaxRate,
		BaseCurrency:  conf.BaseCurrency(),
		Concurrency:   conf.Pricing.SearchConcurrency,
		SearchTimeout: conf.SearchTimeout(),
	})

	handler := api.NewHandler(st, engine, conf.Pricing.CurrencyExponent)
	if cache != nil {
		handler.InventoryCache = cache
	}

	cors := conf.App.CORS
	router := api.NewRouter(handler, api.CORSOptions{
		AllowedOrigins:   cors.AllowedOrigins,
		AllowedMethods:   cors.AllowedMethods,
		AllowedHeaders:   cors.AllowedHeaders,
		AllowCredentials: cors.AllowCredentials,
		MaxAgeSeconds:    cors.MaxAgeSeconds,
	})

	server := &http.Server{
		Addr:         conf.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("env", conf.Server.Env).
			Str("base_currency", string(conf.BaseCurrency())).
			Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), conf.GracePeriod())
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}

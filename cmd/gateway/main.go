package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/kimmyxpow/focus-sub001/internal/auth"
	"github.com/kimmyxpow/focus-sub001/internal/config"
	"github.com/kimmyxpow/focus-sub001/internal/events"
	"github.com/kimmyxpow/focus-sub001/internal/gateway"
	"github.com/kimmyxpow/focus-sub001/internal/session"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	configPath := flag.String("config", "config.yaml", "path to the config file")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create database pool")
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}

	nc, err := events.Connect(cfg.NATS.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to NATS")
	}
	defer nc.Close()

	log.Info().
		Str("nats_url", cfg.NATS.URL).
		Str("addr", cfg.Gateway.Addr).
		Msg("starting focus session gateway")

	hub := gateway.NewHub()

	consumer := gateway.NewConsumer(hub, nc)
	if err := consumer.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start event consumer")
	}
	defer consumer.Stop()

	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	authorizer := gateway.NewAuthorizer(verifier, session.NewPostgresRepository(pool))
	manager := gateway.NewConnectionManager(hub, gateway.DefaultConnectionConfig())
	handler := gateway.NewWebSocketHandler(manager, authorizer)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Gateway.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet},
		AllowedHeaders:   []string{"Authorization"},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:        cfg.Gateway.Addr,
		Handler:     corsHandler.Handler(mux),
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("gateway failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("gateway shutdown failed")
	}
}

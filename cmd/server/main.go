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
	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/kimmyxpow/focus-sub001/internal/auth"
	"github.com/kimmyxpow/focus-sub001/internal/chat"
	"github.com/kimmyxpow/focus-sub001/internal/config"
	"github.com/kimmyxpow/focus-sub001/internal/events"
	"github.com/kimmyxpow/focus-sub001/internal/httpapi"
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
		Str("database", cfg.Database.Database).
		Str("nats_url", cfg.NATS.URL).
		Str("addr", cfg.HTTP.Addr).
		Msg("starting focus session server")

	clock := clockwork.NewRealClock()
	publisher := events.NewNATSPublisher(nc)

	sessionRepo := session.NewPostgresRepository(pool)
	chatRepo := chat.NewPostgresRepository(pool)

	sessionApp := session.NewApp(sessionRepo, publisher, clock)
	chatApp := chat.NewApp(chatRepo, sessionRepo, publisher, clock, cfg.Chat.MaxMessageLen)

	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	router := httpapi.NewRouter(
		verifier,
		httpapi.NewSessionHandler(sessionApp),
		httpapi.NewChatHandler(chatApp),
	)

	sweeper := session.NewSweeper(sessionRepo, publisher, clock,
		cfg.Timers.SweepInterval, cfg.Timers.TimerSyncInterval)
	go func() {
		if err := sweeper.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("sweeper stopped")
		}
	}()

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Gateway.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      corsHandler.Handler(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
}

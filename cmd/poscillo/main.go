package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/poscillo/poscillo/internal/config"
	"github.com/poscillo/poscillo/internal/db"
	"github.com/poscillo/poscillo/internal/events"
	"github.com/poscillo/poscillo/internal/menu"
	"github.com/poscillo/poscillo/internal/order"
	"github.com/poscillo/poscillo/internal/transport"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	log.Logger = log.With().Str("service", "poscillo").Logger()

	log.Info().Msg("Poscillo starting...")

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	database, err := db.New(cfg.Postgres)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.RabbitMQ.URL != "" {
		rabbit, err := events.NewRabbitMQPublisher(cfg.RabbitMQ.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
		}
		defer func() {
			if err := rabbit.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close RabbitMQ connection")
			}
		}()
		publisher = rabbit
	} else {
		log.Warn().Msg("RABBITMQ_URL not set, status updates will not be published")
	}

	orderStore := order.NewPostgresStore(database.Pool)
	orderSvc := order.NewService(orderStore, publisher)

	menuRepo := menu.NewPostgresRepository(database.DB)
	menuSvc := menu.NewService(menuRepo)

	router := transport.NewRouter(orderSvc, menuSvc)

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout: 10 * time.Second,
		// No write timeout: the queue stream endpoints hold the response open.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Shutdown failed")
	}

	log.Info().Msg("Poscillo stopped gracefully")
}

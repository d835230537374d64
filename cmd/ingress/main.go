package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/boletoflow/boletoflow/internal/bus"
	"github.com/boletoflow/boletoflow/internal/chat"
	"github.com/boletoflow/boletoflow/internal/config"
	"github.com/boletoflow/boletoflow/internal/ingress"
	"github.com/boletoflow/boletoflow/internal/models"
)

func main() {
	_ = godotenv.Load()
	log := zerolog.New(os.Stderr).With().Timestamp().Str("service", "ingress").Logger()

	botToken := config.String("BOT_TOKEN", "")
	if botToken == "" {
		log.Fatal().Msg("BOT_TOKEN is required")
	}
	broker := config.String("KAFKA_BROKER_URL", "localhost:9092")
	rawTopic := config.String("OUTPUT_TOPIC", models.TopicRaw)
	verifiedTopic := config.String("VERIFIED_TOPIC", models.TopicVerified)
	port := config.String("PORT", "3000")

	gateway := chat.NewGateway(botToken, log)
	publisher := bus.NewPublisher(broker, log)
	defer publisher.Close()

	flow := ingress.NewFlow(gateway, publisher, rawTopic, verifiedTopic, log)
	server := ingress.NewServer(":"+port, flow, gateway, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		log.Fatal().Err(err).Msg("server failed")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
	log.Info().Msg("ingress stopped")
}

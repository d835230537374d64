package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/boletoflow/boletoflow/internal/bus"
	"github.com/boletoflow/boletoflow/internal/config"
	"github.com/boletoflow/boletoflow/internal/enrich"
	"github.com/boletoflow/boletoflow/internal/models"
	"github.com/boletoflow/boletoflow/internal/store"
)

func main() {
	_ = godotenv.Load()
	log := zerolog.New(os.Stderr).With().Timestamp().Str("service", "enrich").Logger()

	broker := config.String("KAFKA_BROKER_URL", "localhost:9092")
	inputTopic := config.String("INPUT_TOPIC", models.TopicVerified)
	outputTopic := config.String("OUTPUT_TOPIC", models.TopicEnriched)
	groupID := config.String("GROUP_ID", "enrich-worker-group")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, config.PostgresFromEnv(), 5, log)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()

	publisher := bus.NewPublisher(broker, log)
	defer publisher.Close()

	enricher := enrich.New(db, publisher, outputTopic, log)

	consumer := bus.NewConsumer(broker, inputTopic, groupID, log)
	defer consumer.Close()

	log.Info().Str("topic", inputTopic).Msg("enrich worker started")
	err = consumer.Loop(ctx, func(ctx context.Context, topic string, value []byte) error {
		var envelope models.VerifiedEnvelope
		if err := bus.Decode(topic, value, &envelope); err != nil {
			return err
		}
		return enricher.Handle(ctx, &envelope)
	})
	if err != nil {
		log.Error().Err(err).Msg("consumer loop ended")
	}
	log.Info().Msg("enrich stopped")
}

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
	"github.com/boletoflow/boletoflow/internal/models"
	"github.com/boletoflow/boletoflow/internal/notify"
)

func main() {
	_ = godotenv.Load()
	log := zerolog.New(os.Stderr).With().Timestamp().Str("service", "notify").Logger()

	broker := config.String("KAFKA_BROKER_URL", "localhost:9092")
	inputTopic := config.String("INPUT_TOPIC", models.TopicComposed)
	groupID := config.String("GROUP_ID", "notify-worker-group")
	apiURL := config.String("API_URL", "http://localhost:3000")

	notifier := notify.New(apiURL, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consumer := bus.NewConsumer(broker, inputTopic, groupID, log)
	defer consumer.Close()

	log.Info().Str("topic", inputTopic).Msg("notify worker started")
	err := consumer.Loop(ctx, func(ctx context.Context, topic string, value []byte) error {
		var envelope models.ComposedEnvelope
		if err := bus.Decode(topic, value, &envelope); err != nil {
			return err
		}
		return notifier.Handle(ctx, &envelope)
	})
	if err != nil {
		log.Error().Err(err).Msg("consumer loop ended")
	}
	log.Info().Msg("notify stopped")
}

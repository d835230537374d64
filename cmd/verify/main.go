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
	"github.com/boletoflow/boletoflow/internal/llm"
	"github.com/boletoflow/boletoflow/internal/models"
	"github.com/boletoflow/boletoflow/internal/store"
	"github.com/boletoflow/boletoflow/internal/verify"
)

func main() {
	_ = godotenv.Load()
	log := zerolog.New(os.Stderr).With().Timestamp().Str("service", "verify").Logger()

	broker := config.String("KAFKA_BROKER_URL", "localhost:9092")
	inputTopic := config.String("INPUT_TOPIC", models.TopicInterpreted)
	groupID := config.String("GROUP_ID", "verify-worker-group")
	postURL := config.String("POST_URL", "http://localhost:3000/api/processar")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, config.PostgresFromEnv(), 5, log)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()

	generator, err := llm.New(config.LLMFromEnv(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("llm client failed")
	}

	banks := verify.NewBankResolver(db, generator, log)
	verifier := verify.New(db, verify.NewAPIClient(postURL), banks, log)

	consumer := bus.NewConsumer(broker, inputTopic, groupID, log)
	defer consumer.Close()

	log.Info().Str("topic", inputTopic).Msg("verify worker started")
	err = consumer.Loop(ctx, func(ctx context.Context, topic string, value []byte) error {
		var envelope models.InterpretedEnvelope
		if err := bus.Decode(topic, value, &envelope); err != nil {
			return err
		}
		return verifier.Handle(ctx, &envelope)
	})
	if err != nil {
		log.Error().Err(err).Msg("consumer loop ended")
	}
	log.Info().Msg("verify stopped")
}

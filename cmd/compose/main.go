package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/boletoflow/boletoflow/internal/bus"
	"github.com/boletoflow/boletoflow/internal/compose"
	"github.com/boletoflow/boletoflow/internal/config"
	"github.com/boletoflow/boletoflow/internal/llm"
	"github.com/boletoflow/boletoflow/internal/models"
)

func main() {
	_ = godotenv.Load()
	log := zerolog.New(os.Stderr).With().Timestamp().Str("service", "compose").Logger()

	broker := config.String("KAFKA_BROKER_URL", "localhost:9092")
	inputTopic := config.String("INPUT_TOPIC", models.TopicMatched)
	outputTopic := config.String("OUTPUT_TOPIC", models.TopicComposed)
	groupID := config.String("GROUP_ID", "compose-worker-group")
	workers := config.Int("WORKER_COUNT", 1)

	generator, err := llm.New(config.LLMFromEnv(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("llm client failed")
	}

	publisher := bus.NewPublisher(broker, log)
	defer publisher.Close()

	composer := compose.New(generator, publisher, outputTopic, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		consumer := bus.NewConsumer(broker, inputTopic, groupID, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer consumer.Close()
			err := consumer.Loop(ctx, func(ctx context.Context, topic string, value []byte) error {
				var envelope models.MatchedEnvelope
				if err := bus.Decode(topic, value, &envelope); err != nil {
					return err
				}
				return composer.Handle(ctx, &envelope)
			})
			if err != nil {
				log.Error().Err(err).Msg("consumer loop ended")
			}
		}()
	}

	log.Info().Int("workers", workers).Str("topic", inputTopic).Msg("compose workers started")
	wg.Wait()
	log.Info().Msg("compose stopped")
}

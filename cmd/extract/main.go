package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/textract"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/boletoflow/boletoflow/internal/bus"
	"github.com/boletoflow/boletoflow/internal/config"
	"github.com/boletoflow/boletoflow/internal/extract"
	"github.com/boletoflow/boletoflow/internal/models"
)

func main() {
	_ = godotenv.Load()
	log := zerolog.New(os.Stderr).With().Timestamp().Str("service", "extract").Logger()

	broker := config.String("KAFKA_BROKER_URL", "localhost:9092")
	inputTopic := config.String("INPUT_TOPIC", models.TopicRaw)
	outputTopic := config.String("OUTPUT_TOPIC", models.TopicParsed)
	groupID := config.String("GROUP_ID", "extract-worker-group")
	workers := config.Int("WORKER_COUNT", 1)
	region := config.String("AWS_REGION", "us-east-1")

	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		log.Fatal().Err(err).Msg("aws session failed")
	}

	publisher := bus.NewPublisher(broker, log)
	defer publisher.Close()

	extractor := extract.New(textract.New(sess), publisher, outputTopic, log)

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
				var envelope models.RawEnvelope
				if err := bus.Decode(topic, value, &envelope); err != nil {
					return err
				}
				return extractor.Handle(ctx, &envelope)
			})
			if err != nil {
				log.Error().Err(err).Msg("consumer loop ended")
			}
		}()
	}

	log.Info().Int("workers", workers).Str("topic", inputTopic).Msg("extract workers started")
	wg.Wait()
	log.Info().Msg("extract stopped")
}

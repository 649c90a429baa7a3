// Entry point for the shift summary email worker
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rs/zerolog/log"

	"punchclock.service/internal/config"
	"punchclock.service/internal/core"
	"punchclock.service/internal/ports/repository"
	"punchclock.service/internal/worker"
	"punchclock.service/internal/worker/email"
	"punchclock.service/pkg/aws"
	"punchclock.service/pkg/database"
	"punchclock.service/pkg/logger"
	"punchclock.service/pkg/telemetry"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Could not load configuration")
	}
	logger.Setup(cfg.IsLocalDev)

	shutdownTracer, err := telemetry.InitTracer("email-worker", cfg.OTELEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to init tracer")
	}
	defer func() {
		_ = shutdownTracer(context.Background())
	}()

	db, err := database.NewInstrumentedConnection(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error opening database")
	}
	defer db.Close()
	log.Info().Msg("Successfully connected to the database.")

	awsCfg, err := aws.NewAWSConfig(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to load SDK config")
	}

	sqsClient := sqs.NewFromConfig(awsCfg)
	sesClient := ses.NewFromConfig(awsCfg)
	repo := repository.NewTimeRecordRepository(db)
	emailService := core.NewSESEmailService(sesClient, cfg.EmailSender)
	processor := email.NewProcessor(emailService, repo, cfg.EmailDomain)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	worker.NewWorker(sqsClient, cfg.EmailSQSQueueURL, processor).Start(ctx)
	log.Info().Msg("Worker exited gracefully")
}

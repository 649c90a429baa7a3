package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/rs/zerolog/log"

	"punchclock.service/internal/config"
)

// NewAWSConfig loads the SDK configuration. In local development every
// service client is pointed at AWS_ENDPOINT (LocalStack) with static credentials.
func NewAWSConfig(ctx context.Context, appConfig config.Config) (aws.Config, error) {
	if !appConfig.IsLocalDev {
		log.Info().Str("region", appConfig.AWSRegion).Msg("Using standard AWS credential chain")
		return awsConfig.LoadDefaultConfig(ctx, awsConfig.WithRegion(appConfig.AWSRegion))
	}

	log.Info().Str("endpoint", appConfig.AWSEndpoint).Msg("Local development mode, routing AWS calls to LocalStack")
	cfg, err := awsConfig.LoadDefaultConfig(ctx,
		awsConfig.WithRegion(appConfig.AWSRegion),
		awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")),
	)
	if err != nil {
		return cfg, err
	}
	if appConfig.AWSEndpoint != "" {
		cfg.BaseEndpoint = aws.String(appConfig.AWSEndpoint)
	}
	return cfg, nil
}

package storage

import (
	"context"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/timestreamwrite"
	"github.com/pkg/errors"

	"github.com/chamberlog/chamberlog/internal/config"
)

// FromConfig builds the writer selected by the configuration, with AWS
// credentials resolved from the default chain.
func FromConfig(ctx context.Context, cfg config.Config) (Writer, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load aws config")
	}
	switch cfg.Backend {
	case config.BackendTimestream:
		client := timestreamwrite.NewFromConfig(awsCfg)
		return NewTimestreamWriter(client, cfg.TimestreamDB, cfg.TimestreamTelemetryTable, cfg.TimestreamEventTable), nil
	case config.BackendDynamo:
		client := dynamodb.NewFromConfig(awsCfg)
		return NewDynamoWriter(client, cfg.DynamoTelemetryTable, cfg.DynamoEventTable), nil
	default:
		return nil, errors.Errorf("unknown backend %q", cfg.Backend)
	}
}

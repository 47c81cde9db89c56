package di

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/rs/zerolog"

	"github.com/teamfirst/deploy-dispatcher/internal/dao/rundao"
	"github.com/teamfirst/deploy-dispatcher/internal/services"
)

// ProvideContext returns a background context carrying the application logger.
func ProvideContext(logger zerolog.Logger) context.Context {
	return logger.WithContext(context.Background())
}

func ProvideAWSConfig(ctx context.Context) (aws.Config, error) {
	return config.LoadDefaultConfig(ctx)
}

func ProvideDynamoDB(config aws.Config) *dynamodb.Client {
	return dynamodb.NewFromConfig(config)
}

// ProvideS3Client pins the client to the configured bucket region when one
// is set, since the Glue bucket lives in a fixed region regardless of where
// the dispatcher runs.
func ProvideS3Client(config aws.Config, appConfig *services.Config) *s3.Client {
	return s3.NewFromConfig(config, func(o *s3.Options) {
		if appConfig.Region != "" {
			o.Region = appConfig.Region
		}
	})
}

func ProvideSecretsManager(config aws.Config) *secretsmanager.Client {
	return secretsmanager.NewFromConfig(config)
}

func ProvideSTS(config aws.Config) *sts.Client {
	return sts.NewFromConfig(config)
}

func ProvideRunDAO(env string, client *dynamodb.Client) *rundao.DAO {
	return rundao.New(client, rundao.TableName(env))
}

func ProvideSSHKeyService(client *secretsmanager.Client) *services.SSHKeyService {
	return services.NewSSHKeyService(client)
}

func ProvideIdentityService(client *sts.Client) *services.IdentityService {
	return services.NewIdentityService(client)
}

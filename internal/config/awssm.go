package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// resolveAWSSecretsManager fetches a secret by name or ARN from AWS Secrets
// Manager, using the default credential chain for region and auth.
func resolveAWSSecretsManager(ref string) (string, error) {
	ctx := context.Background()
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return "", fmt.Errorf("loading AWS credentials: %w", err)
	}

	client := secretsmanager.NewFromConfig(cfg)
	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(ref),
	})
	if err != nil {
		return "", fmt.Errorf("fetching AWS secret %q: %w", ref, err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("AWS secret %q is binary, only string secrets are supported", ref)
	}
	return *out.SecretString, nil
}

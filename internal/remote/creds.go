package remote

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// Credentials is an immutable AWS credential triple. Fields left empty at
// construction fall back to the standard environment variables.
type Credentials struct {
	KeyID     string
	SecretKey string
	Region    string
}

// CredentialsFromEnv reads the credential triple from AWS_ACCESS_KEY_ID,
// AWS_SECRET_ACCESS_KEY and AWS_DEFAULT_REGION.
func CredentialsFromEnv() Credentials {
	return Credentials{
		KeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		Region:    os.Getenv("AWS_DEFAULT_REGION"),
	}
}

// orEnv fills empty fields from the environment.
func (c Credentials) orEnv() Credentials {
	env := CredentialsFromEnv()
	if c.KeyID == "" {
		c.KeyID = env.KeyID
	}
	if c.SecretKey == "" {
		c.SecretKey = env.SecretKey
	}
	if c.Region == "" {
		c.Region = env.Region
	}
	return c
}

// awsConfig builds the SDK configuration for the credential triple.
func (c Credentials) awsConfig(ctx context.Context) (aws.Config, error) {
	return config.LoadDefaultConfig(ctx,
		config.WithRegion(c.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.KeyID, c.SecretKey, ""),
		),
	)
}

package remote

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"capstan/pkg/logger"
)

// s3Uploader is the slice of the S3 upload manager the connector needs.
// *manager.Uploader satisfies it; tests use a fake.
type s3Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// ObjectStoreConnector streams artifacts into an S3 bucket. It carries no
// retry layer of its own; transient failures propagate to the caller.
type ObjectStoreConnector struct {
	bucket   string
	prefix   string
	uploader s3Uploader
}

// NewObjectStoreConnector returns a connector uploading under
// prefix+name in the given bucket.
func NewObjectStoreConnector(ctx context.Context, creds Credentials, bucket, prefix string) (*ObjectStoreConnector, error) {
	cfg, err := creds.awsConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &ObjectStoreConnector{
		bucket:   bucket,
		prefix:   prefix,
		uploader: manager.NewUploader(s3.NewFromConfig(cfg)),
	}, nil
}

// UploadArtifact uploads the stream and returns the public object URL.
// Properties are not representable on S3 objects here and are ignored.
func (c *ObjectStoreConnector) UploadArtifact(ctx context.Context, name string, body io.Reader, _ Properties) (string, error) {
	key := c.prefix + name
	logger.Info("Uploading object", "bucket", c.bucket, "key", key)

	_, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload s3://%s/%s: %w", c.bucket, key, err)
	}
	return c.objectURL(name), nil
}

func (c *ObjectStoreConnector) objectURL(name string) string {
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s%s", c.bucket, c.prefix, name)
}

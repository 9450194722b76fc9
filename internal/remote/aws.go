package remote

import (
	"context"
	"fmt"
	"io"

	"capstan/internal/retry"
)

// AWSRemote publishes to AWS-backed stores: container images to a managed
// registry, signatures and generic artifacts to S3 buckets. Channels are
// bound lazily by the Setup calls and fail fast until then.
type AWSRemote struct {
	creds  Credentials
	policy retry.Policy

	images     ImageUploader
	signatures ArtifactUploader
	generic    ArtifactUploader
}

// NewAWSRemote builds the remote from the credential triple, falling back
// to the environment for fields left empty.
func NewAWSRemote(creds Credentials, policy retry.Policy) *AWSRemote {
	r := &AWSRemote{creds: creds.orEnv(), policy: policy}
	r.images = unconfigured{remote: r.String(), channel: "images"}
	r.signatures = unconfigured{remote: r.String(), channel: "signatures"}
	r.generic = unconfigured{remote: r.String(), channel: "generic"}
	return r
}

func (r *AWSRemote) String() string {
	return fmt.Sprintf("aws(region=%s, key_id=%s)", r.creds.Region, r.creds.KeyID)
}

// SetupImages binds the image channel to a managed registry connector.
func (r *AWSRemote) SetupImages(ctx context.Context, pathPrefixes []string, repoPolicy string) error {
	c, err := NewManagedConnector(ctx, r.creds, pathPrefixes, repoPolicy, r.policy)
	if err != nil {
		return err
	}
	r.images = c
	return nil
}

// UploadImage pushes a local image through the image channel.
func (r *AWSRemote) UploadImage(ctx context.Context, localRef, name, tag string) (string, error) {
	return r.images.UploadImage(ctx, localRef, name, tag)
}

// PushRegistry returns the registry host the image channel uploads to.
func (r *AWSRemote) PushRegistry() (string, error) {
	c, ok := r.images.(interface{ PushRegistry() string })
	if !ok {
		return "", &ConfigError{Remote: r.String(), Channel: "images"}
	}
	return c.PushRegistry(), nil
}

// SetupSignatures binds the signature channel to an S3 bucket.
func (r *AWSRemote) SetupSignatures(ctx context.Context, bucket string) error {
	c, err := NewObjectStoreConnector(ctx, r.creds, bucket, "")
	if err != nil {
		return err
	}
	r.signatures = c
	return nil
}

// UploadSignature uploads a signature under artifactType/sigName.
func (r *AWSRemote) UploadSignature(ctx context.Context, artifactType, sigName string, body io.Reader) (string, error) {
	return r.signatures.UploadArtifact(ctx, artifactType+"/"+sigName, body, nil)
}

// SetupGeneric binds the generic channel to an S3 bucket with an optional
// key prefix.
func (r *AWSRemote) SetupGeneric(ctx context.Context, bucket, prefix string) error {
	c, err := NewObjectStoreConnector(ctx, r.creds, bucket, prefix)
	if err != nil {
		return err
	}
	r.generic = c
	return nil
}

// UploadGeneric uploads a generic artifact. Properties are accepted for
// interface symmetry; the object store has nowhere to put them.
func (r *AWSRemote) UploadGeneric(ctx context.Context, name string, body io.Reader, props Properties) (string, error) {
	return r.generic.UploadArtifact(ctx, name, body, props)
}

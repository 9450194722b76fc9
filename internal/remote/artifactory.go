package remote

import (
	"context"
	"fmt"
	"io"

	"capstan/internal/retry"
)

// ArtifactoryRemote publishes to an HTTP artifact repository: container
// images to a plain registry, signatures over basic-auth PUT, generic
// artifacts through the two-phase staging protocol.
type ArtifactoryRemote struct {
	username string
	password string
	policy   retry.Policy

	images     ImageUploader
	signatures ArtifactUploader
	generic    ArtifactUploader
}

// NewArtifactoryRemote builds the remote with the shared account used by
// all three channels.
func NewArtifactoryRemote(username, password string, policy retry.Policy) *ArtifactoryRemote {
	r := &ArtifactoryRemote{username: username, password: password, policy: policy}
	r.images = unconfigured{remote: r.String(), channel: "images"}
	r.signatures = unconfigured{remote: r.String(), channel: "signatures"}
	r.generic = unconfigured{remote: r.String(), channel: "generic"}
	return r
}

func (r *ArtifactoryRemote) String() string {
	return fmt.Sprintf("artifactory(user=%s)", r.username)
}

// SetupImages binds the image channel to the given registries; uploads go
// to the first.
func (r *ArtifactoryRemote) SetupImages(registries []string) error {
	c, err := NewRegistryConnector(registries, r.username, r.password, r.policy)
	if err != nil {
		return err
	}
	r.images = c
	return nil
}

// UploadImage pushes a local image through the image channel.
func (r *ArtifactoryRemote) UploadImage(ctx context.Context, localRef, name, tag string) (string, error) {
	return r.images.UploadImage(ctx, localRef, name, tag)
}

// SetupSignatures binds the signature channel to a basic-auth HTTP store.
func (r *ArtifactoryRemote) SetupSignatures(baseURL string) {
	r.signatures = NewHTTPConnector(baseURL, r.username, r.password)
}

// UploadSignature uploads a signature under artifactType/sigName.
func (r *ArtifactoryRemote) UploadSignature(ctx context.Context, artifactType, sigName string, body io.Reader) (string, error) {
	return r.signatures.UploadArtifact(ctx, artifactType+"/"+sigName, body, nil)
}

// SetupGeneric binds the generic channel to the two-phase staging store.
// An empty stagingPath disables the staging step and the duplicate guard.
func (r *ArtifactoryRemote) SetupGeneric(baseURL, stagingPath string) {
	r.generic = NewTwoPhaseConnector(baseURL, r.username, r.password, stagingPath)
}

// UploadGeneric uploads a generic artifact with its metadata properties.
func (r *ArtifactoryRemote) UploadGeneric(ctx context.Context, name string, body io.Reader, props Properties) (string, error) {
	return r.generic.UploadArtifact(ctx, name, body, props)
}

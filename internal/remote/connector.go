// Package remote implements the upload side of artifact publishing: a
// uniform upload contract over container registries, AWS-managed registries,
// S3 buckets and basic-auth HTTP artifact repositories.
//
// A remote owns three independently configured channels (container images,
// signatures, generic artifacts). Channels start out bound to a fail-fast
// placeholder and are replaced by real connectors through the Setup calls.
package remote

import (
	"context"
	"io"
	"strings"
)

// Property is one key=value pair of artifact metadata. Properties are kept
// as a slice because the HTTP matrix-parameter encoding preserves the
// caller's insertion order.
type Property struct {
	Key   string
	Value string
}

// Properties is an ordered list of artifact metadata pairs.
type Properties []Property

// matrix encodes the properties as a ";key=value" suffix, or returns the
// empty string when there are none.
func (p Properties) matrix() string {
	if len(p) == 0 {
		return ""
	}
	var b strings.Builder
	for _, kv := range p {
		b.WriteByte(';')
		b.WriteString(kv.Key)
		b.WriteByte('=')
		b.WriteString(kv.Value)
	}
	return b.String()
}

// ImageUploader pushes a locally built container image to a remote registry.
// Empty name or tag default to the values parsed from localRef. The returned
// string is the remote reference the image was pushed under.
type ImageUploader interface {
	UploadImage(ctx context.Context, localRef, name, tag string) (string, error)
}

// ArtifactUploader streams a single artifact to a remote store and returns
// the resolved remote URL.
type ArtifactUploader interface {
	UploadArtifact(ctx context.Context, name string, body io.Reader, props Properties) (string, error)
}

// unconfigured is bound to every channel before its setup call. Each method
// fails with a ConfigError naming the owning remote and the channel, turning
// "used before configured" into a descriptive failure instead of a nil
// dereference.
type unconfigured struct {
	remote  string
	channel string
}

func (u unconfigured) err() error {
	return &ConfigError{Remote: u.remote, Channel: u.channel}
}

func (u unconfigured) UploadImage(context.Context, string, string, string) (string, error) {
	return "", u.err()
}

func (u unconfigured) UploadArtifact(context.Context, string, io.Reader, Properties) (string, error) {
	return "", u.err()
}

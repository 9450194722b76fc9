package remote

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"

	"capstan/internal/retry"
	"capstan/pkg/logger"
)

// imageAPI is the slice of the Docker engine API the registry connector
// needs. *client.Client satisfies it; tests use a fake.
type imageAPI interface {
	ImageTag(ctx context.Context, source, target string) error
	ImagePush(ctx context.Context, ref string, options image.PushOptions) (io.ReadCloser, error)
	ImageRemove(ctx context.Context, ref string, options image.RemoveOptions) ([]image.DeleteResponse, error)
}

func newDockerClient() (*client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}
	return cli, nil
}

// RegistryConnector pushes container images to a remote registry. It holds
// an ordered list of candidate registries; uploads always go to the first.
type RegistryConnector struct {
	registries []string
	username   string
	password   string
	retry      retry.Policy
	api        imageAPI
}

// NewRegistryConnector connects to the local Docker engine and returns a
// connector pushing to registries[0] with the given basic credentials.
func NewRegistryConnector(registries []string, username, password string, policy retry.Policy) (*RegistryConnector, error) {
	if len(registries) == 0 {
		return nil, fmt.Errorf("registry list must not be empty")
	}
	cli, err := newDockerClient()
	if err != nil {
		return nil, err
	}
	return newRegistryConnector(registries, username, password, policy, cli), nil
}

func newRegistryConnector(registries []string, username, password string, policy retry.Policy, api imageAPI) *RegistryConnector {
	return &RegistryConnector{
		registries: registries,
		username:   username,
		password:   password,
		retry:      policy,
		api:        api,
	}
}

// PushRegistry returns the registry uploads are sent to.
func (c *RegistryConnector) PushRegistry() string {
	return c.registries[0]
}

// UploadImage tags localRef under the destination reference, pushes it with
// authentication and removes the local alias again, whether or not the push
// succeeded. Transient push failures are retried under the connector policy.
func (c *RegistryConnector) UploadImage(ctx context.Context, localRef, name, tag string) (string, error) {
	return retry.Do1(c.retry, "push "+localRef, func() (string, error) {
		return c.pushOnce(ctx, localRef, name, tag)
	})
}

func (c *RegistryConnector) pushOnce(ctx context.Context, localRef, name, tag string) (string, error) {
	localName, localTag, err := splitRef(localRef)
	if err != nil {
		return "", err
	}
	if name == "" {
		name = localName
	}
	if tag == "" {
		tag = localTag
	}
	uploadPath := c.registries[0] + "/" + name
	uploadRef := uploadPath + ":" + tag

	if err := c.api.ImageTag(ctx, localRef, uploadRef); err != nil {
		return "", fmt.Errorf("failed to tag %s as %s: %w", localRef, uploadRef, err)
	}
	defer func() {
		// The alias is local state only; removal failure must not mask
		// the push result.
		if _, err := c.api.ImageRemove(ctx, uploadRef, image.RemoveOptions{}); err != nil {
			logger.Warn("Failed to remove local tag alias", "ref", uploadRef, "error", err)
		}
	}()

	auth, err := registry.EncodeAuthConfig(registry.AuthConfig{
		Username: c.username,
		Password: c.password,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode registry auth: %w", err)
	}

	logger.Info("Pushing image", "local", localRef, "ref", uploadRef)
	out, err := c.api.ImagePush(ctx, uploadRef, image.PushOptions{RegistryAuth: auth})
	if err != nil {
		return "", &TransientError{Op: "push", URL: uploadRef, Err: err}
	}
	defer out.Close()

	if err := checkPushStream(out, uploadRef); err != nil {
		return "", err
	}
	return uploadRef, nil
}

// PullImage is a stub: downloading is out of scope for publishing.
func (c *RegistryConnector) PullImage(ctx context.Context, ref string) error {
	return nil
}

// checkPushStream scans the JSON-line push response. The engine reports
// push failures inside the stream rather than on the call itself; the first
// record carrying an error aborts the upload. Lines that are not JSON are
// skipped.
func checkPushStream(r io.Reader, uploadRef string) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var record struct {
			Error       string `json:"error"`
			ErrorDetail struct {
				Message string `json:"message"`
			} `json:"errorDetail"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue
		}
		if record.Error != "" {
			msg := record.Error
			if record.ErrorDetail.Message != "" {
				msg = record.ErrorDetail.Message
			}
			return &TransientError{Op: "push", URL: uploadRef, Message: msg}
		}
	}
	if err := scanner.Err(); err != nil {
		return &TransientError{Op: "push", URL: uploadRef, Err: err}
	}
	return nil
}

// splitRef splits an image reference at the tag separator. The split is at
// the last colon so registry:port/name:tag local references keep working.
func splitRef(ref string) (name, tag string, err error) {
	i := strings.LastIndex(ref, ":")
	if i < 0 || strings.Contains(ref[i+1:], "/") {
		return "", "", fmt.Errorf("image reference %q has no tag", ref)
	}
	return ref[:i], ref[i+1:], nil
}

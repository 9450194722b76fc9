package remote

import (
	"context"
	"io"
	"net/http"
	"strings"

	"capstan/pkg/logger"
)

// HTTPConnector publishes artifacts to an HTTP repository with basic
// authentication. The repository signals success with 201 Created; any
// other status is treated as a transient remote failure so callers can
// retry. TLS is verified against the system trust store.
type HTTPConnector struct {
	baseURL  string
	username string
	password string
	client   *http.Client
}

// NewHTTPConnector returns a connector uploading under baseURL.
func NewHTTPConnector(baseURL, username, password string) *HTTPConnector {
	return &HTTPConnector{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		client:   http.DefaultClient,
	}
}

// UploadArtifact PUTs the stream to baseURL/name. Non-empty properties are
// appended as matrix parameters in insertion order.
func (c *HTTPConnector) UploadArtifact(ctx context.Context, name string, body io.Reader, props Properties) (string, error) {
	uploadURL := c.baseURL + "/" + name + props.matrix()
	return c.put(ctx, uploadURL, body)
}

func (c *HTTPConnector) put(ctx context.Context, uploadURL string, body io.Reader) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, body)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.username, c.password)

	logger.Info("Uploading artifact", "url", uploadURL)
	resp, err := c.client.Do(req)
	if err != nil {
		return "", &TransientError{Op: "upload", URL: uploadURL, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusCreated {
		return "", &TransientError{
			Op:         "upload",
			URL:        uploadURL,
			StatusCode: resp.StatusCode,
			Message:    "upload rejected",
		}
	}
	return uploadURL, nil
}

// head probes a URL; the boolean reports whether the object is present.
func (c *HTTPConnector) head(ctx context.Context, checkURL string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, checkURL, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false, &TransientError{Op: "probe", URL: checkURL, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode < 400, nil
}

package remote

import (
	"context"
	"io"
	"path"
)

// TwoPhaseConnector publishes artifacts through a staged two-phase
// transaction: the artifact is uploaded under a staging path and moved to
// its final location later by an external process. Before staging, the
// final location is probed; re-publishing an already-released artifact is a
// fatal error, not something to retry.
//
// With an empty staging path the connector behaves like a plain
// HTTPConnector.
type TwoPhaseConnector struct {
	*HTTPConnector
	stagingPath string
}

// NewTwoPhaseConnector returns a connector staging uploads under
// baseURL/stagingPath.
func NewTwoPhaseConnector(baseURL, username, password, stagingPath string) *TwoPhaseConnector {
	return &TwoPhaseConnector{
		HTTPConnector: NewHTTPConnector(baseURL, username, password),
		stagingPath:   stagingPath,
	}
}

// UploadArtifact uploads to the staged location and returns the staged URL.
// If the artifact already exists at its final location the upload is
// aborted with AlreadyPublishedError and nothing is written.
func (c *TwoPhaseConnector) UploadArtifact(ctx context.Context, name string, body io.Reader, props Properties) (string, error) {
	if c.stagingPath != "" {
		finalURL := c.baseURL + "/" + name
		present, err := c.head(ctx, finalURL)
		if err != nil {
			return "", err
		}
		if present {
			return "", &AlreadyPublishedError{URL: finalURL}
		}
		name = path.Join(c.stagingPath, name)
	}
	return c.HTTPConnector.UploadArtifact(ctx, name, body, props)
}

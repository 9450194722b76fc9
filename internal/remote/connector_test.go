package remote

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnconfigured_UploadImageFailsDescriptively(t *testing.T) {
	u := unconfigured{remote: "artifactory(user=ci)", channel: "images"}

	_, err := u.UploadImage(context.Background(), "myimg:1.0", "", "")

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "artifactory(user=ci)", cfgErr.Remote)
	assert.Equal(t, "images", cfgErr.Channel)
}

func TestUnconfigured_UploadArtifactFailsDescriptively(t *testing.T) {
	u := unconfigured{remote: "aws(region=eu-west-1, key_id=AKIA)", channel: "generic"}

	_, err := u.UploadArtifact(context.Background(), "a.tar", strings.NewReader("x"), nil)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "generic", cfgErr.Channel)
	assert.Contains(t, err.Error(), "aws(region=eu-west-1, key_id=AKIA)")
}

func TestProperties_MatrixEncoding(t *testing.T) {
	assert.Equal(t, "", Properties{}.matrix())
	assert.Equal(t, "", Properties(nil).matrix())

	props := Properties{
		{Key: "version", Value: "1.0"},
		{Key: "arch", Value: "amd64"},
		{Key: "channel", Value: "stable"},
	}
	assert.Equal(t, ";version=1.0;arch=amd64;channel=stable", props.matrix())
}

package remote

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"capstan/internal/retry"
)

const (
	okStream = `{"status":"Preparing"}
{"status":"Pushed"}
{"status":"1.0: digest: sha256:abc size: 1234"}
`
	deniedStream = `{"status":"Preparing"}
{"error":"denied","errorDetail":{"message":"denied: requested access to the resource is denied"}}
`
)

type fakeImageAPI struct {
	tagged  [][2]string
	pushed  []string
	auths   []string
	removed []string

	tagErr  error
	pushErr error
	// streams holds one push response per ImagePush call; the last entry
	// repeats when more pushes happen.
	streams []string
}

func (f *fakeImageAPI) ImageTag(_ context.Context, source, target string) error {
	if f.tagErr != nil {
		return f.tagErr
	}
	f.tagged = append(f.tagged, [2]string{source, target})
	return nil
}

func (f *fakeImageAPI) ImagePush(_ context.Context, ref string, options image.PushOptions) (io.ReadCloser, error) {
	call := len(f.pushed)
	f.pushed = append(f.pushed, ref)
	f.auths = append(f.auths, options.RegistryAuth)
	if f.pushErr != nil {
		return nil, f.pushErr
	}
	stream := okStream
	if len(f.streams) > 0 {
		if call >= len(f.streams) {
			call = len(f.streams) - 1
		}
		stream = f.streams[call]
	}
	return io.NopCloser(strings.NewReader(stream)), nil
}

func (f *fakeImageAPI) ImageRemove(_ context.Context, ref string, _ image.RemoveOptions) ([]image.DeleteResponse, error) {
	f.removed = append(f.removed, ref)
	return nil, nil
}

func onceOnly() retry.Policy {
	return retry.Policy{MaxAttempts: 1, Sleep: func(time.Duration) {}}
}

func TestRegistryConnector_UploadImage(t *testing.T) {
	api := &fakeImageAPI{}
	c := newRegistryConnector([]string{"reg.example.com"}, "publisher", "hunter2", onceOnly(), api)

	url, err := c.UploadImage(context.Background(), "myimg:1.0", "", "")

	require.NoError(t, err)
	assert.Equal(t, "reg.example.com/myimg:1.0", url)
	require.Len(t, api.tagged, 1)
	assert.Equal(t, [2]string{"myimg:1.0", "reg.example.com/myimg:1.0"}, api.tagged[0])
	assert.Equal(t, []string{"reg.example.com/myimg:1.0"}, api.pushed)
	assert.Equal(t, []string{"reg.example.com/myimg:1.0"}, api.removed)

	auth, err := registry.DecodeAuthConfig(api.auths[0])
	require.NoError(t, err)
	assert.Equal(t, "publisher", auth.Username)
	assert.Equal(t, "hunter2", auth.Password)
}

func TestRegistryConnector_UploadNameAndTagOverride(t *testing.T) {
	api := &fakeImageAPI{}
	c := newRegistryConnector([]string{"reg.example.com"}, "u", "p", onceOnly(), api)

	url, err := c.UploadImage(context.Background(), "myimg:1.0", "team/app", "2024.1")

	require.NoError(t, err)
	assert.Equal(t, "reg.example.com/team/app:2024.1", url)
}

func TestRegistryConnector_FirstRegistryIsAuthoritative(t *testing.T) {
	api := &fakeImageAPI{}
	c := newRegistryConnector([]string{"primary.example.com", "mirror.example.com"}, "u", "p", onceOnly(), api)

	url, err := c.UploadImage(context.Background(), "myimg:1.0", "", "")

	require.NoError(t, err)
	assert.Equal(t, "primary.example.com/myimg:1.0", url)
	assert.Equal(t, "primary.example.com", c.PushRegistry())
}

func TestRegistryConnector_StreamErrorAbortsAndCleansUp(t *testing.T) {
	api := &fakeImageAPI{streams: []string{deniedStream}}
	c := newRegistryConnector([]string{"reg.example.com"}, "u", "p", onceOnly(), api)

	_, err := c.UploadImage(context.Background(), "myimg:1.0", "", "")

	var te *TransientError
	require.ErrorAs(t, err, &te)
	assert.Contains(t, te.Message, "denied: requested access")

	// The local alias is removed even though the push failed.
	assert.Equal(t, []string{"reg.example.com/myimg:1.0"}, api.removed)
}

func TestRegistryConnector_TransientPushIsRetried(t *testing.T) {
	sleeps := 0
	policy := retry.Policy{MaxAttempts: 3, Sleep: func(time.Duration) { sleeps++ }}
	api := &fakeImageAPI{streams: []string{deniedStream, okStream}}
	c := newRegistryConnector([]string{"reg.example.com"}, "u", "p", policy, api)

	url, err := c.UploadImage(context.Background(), "myimg:1.0", "", "")

	require.NoError(t, err)
	assert.Equal(t, "reg.example.com/myimg:1.0", url)
	assert.Len(t, api.pushed, 2)
	assert.Equal(t, 1, sleeps)
	// One alias removal per attempt.
	assert.Len(t, api.removed, 2)
}

func TestRegistryConnector_TagFailureIsNotRetried(t *testing.T) {
	api := &fakeImageAPI{tagErr: errors.New("no such image")}
	policy := retry.Policy{MaxAttempts: 3, Sleep: func(time.Duration) {
		t.Fatal("tag failures must not consume retry budget")
	}}
	c := newRegistryConnector([]string{"reg.example.com"}, "u", "p", policy, api)

	_, err := c.UploadImage(context.Background(), "myimg:1.0", "", "")

	require.Error(t, err)
	assert.False(t, IsTransient(err))
	assert.Empty(t, api.pushed)
	assert.Empty(t, api.removed)
}

func TestRegistryConnector_UntaggedReferenceIsRejected(t *testing.T) {
	api := &fakeImageAPI{}
	c := newRegistryConnector([]string{"reg.example.com"}, "u", "p", onceOnly(), api)

	_, err := c.UploadImage(context.Background(), "myimg", "", "")

	require.Error(t, err)
	assert.Empty(t, api.tagged)
	assert.Empty(t, api.removed)
}

func TestCheckPushStream_SkipsNonJSONLines(t *testing.T) {
	stream := "not json\n{\"status\":\"Pushed\"}\n"
	assert.NoError(t, checkPushStream(strings.NewReader(stream), "ref"))
}

func TestSplitRef(t *testing.T) {
	tests := []struct {
		ref     string
		name    string
		tag     string
		wantErr bool
	}{
		{ref: "myimg:1.0", name: "myimg", tag: "1.0"},
		{ref: "localhost:5000/myimg:1.0", name: "localhost:5000/myimg", tag: "1.0"},
		{ref: "myimg", wantErr: true},
		{ref: "localhost:5000/myimg", wantErr: true},
	}
	for _, tt := range tests {
		name, tag, err := splitRef(tt.ref)
		if tt.wantErr {
			assert.Error(t, err, tt.ref)
			continue
		}
		require.NoError(t, err, tt.ref)
		assert.Equal(t, tt.name, name, tt.ref)
		assert.Equal(t, tt.tag, tag, tt.ref)
	}
}

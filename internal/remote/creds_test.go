package remote

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCredentialsFromEnv(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIAENV")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "env-secret")
	t.Setenv("AWS_DEFAULT_REGION", "eu-west-1")

	creds := CredentialsFromEnv()

	assert.Equal(t, "AKIAENV", creds.KeyID)
	assert.Equal(t, "env-secret", creds.SecretKey)
	assert.Equal(t, "eu-west-1", creds.Region)
}

func TestCredentials_OrEnvFillsOnlyEmptyFields(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIAENV")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "env-secret")
	t.Setenv("AWS_DEFAULT_REGION", "eu-west-1")

	creds := Credentials{KeyID: "AKIAEXPLICIT"}.orEnv()

	assert.Equal(t, "AKIAEXPLICIT", creds.KeyID)
	assert.Equal(t, "env-secret", creds.SecretKey)
	assert.Equal(t, "eu-west-1", creds.Region)
}

func TestCredentials_ExplicitValuesWin(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIAENV")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "env-secret")
	t.Setenv("AWS_DEFAULT_REGION", "eu-west-1")

	creds := Credentials{
		KeyID:     "AKIAEXPLICIT",
		SecretKey: "explicit-secret",
		Region:    "us-east-2",
	}.orEnv()

	assert.Equal(t, "AKIAEXPLICIT", creds.KeyID)
	assert.Equal(t, "explicit-secret", creds.SecretKey)
	assert.Equal(t, "us-east-2", creds.Region)
}

// Package config loads the declarative publishing configuration: which
// remotes exist, how their channels are bound, and how uploads are retried.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"capstan/internal/retry"
)

// Config is the top-level capstan.yaml structure. Remotes are optional;
// only the ones a run publishes to need to be present.
type Config struct {
	Retry       RetryConfig        `yaml:"retry"`
	AWS         *AWSConfig         `yaml:"aws"`
	Artifactory *ArtifactoryConfig `yaml:"artifactory"`
}

// RetryConfig configures the shared retry policy.
type RetryConfig struct {
	MaxAttempts    int `yaml:"max_attempts"`
	BackoffSeconds int `yaml:"backoff_seconds"`
}

// Policy converts the configuration into a retry policy value.
func (r RetryConfig) Policy() retry.Policy {
	return retry.Policy{
		MaxAttempts: r.MaxAttempts,
		Backoff:     time.Duration(r.BackoffSeconds) * time.Second,
	}
}

// AWSConfig describes the AWS-backed remote. Credentials left empty fall
// back to the environment at remote construction.
type AWSConfig struct {
	KeyID     string `yaml:"key_id"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`

	Images     *AWSImagesConfig `yaml:"images"`
	Signatures *BucketConfig    `yaml:"signatures"`
	Generic    *BucketConfig    `yaml:"generic"`
}

// AWSImagesConfig configures the managed-registry image channel.
type AWSImagesConfig struct {
	PathPrefixes   []string `yaml:"path_prefixes"`
	RepoPolicyFile string   `yaml:"repo_policy_file"`
}

// PolicyText reads the repository access policy document. The content is
// opaque to capstan and applied verbatim.
func (c *AWSImagesConfig) PolicyText() (string, error) {
	if c.RepoPolicyFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(c.RepoPolicyFile)
	if err != nil {
		return "", fmt.Errorf("failed to read repo policy: %w", err)
	}
	return string(data), nil
}

// BucketConfig configures an S3-backed channel.
type BucketConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

// ArtifactoryConfig describes the HTTP-repository-backed remote.
type ArtifactoryConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	Images     *RegistriesConfig `yaml:"images"`
	Signatures *URLConfig        `yaml:"signatures"`
	Generic    *StagedURLConfig  `yaml:"generic"`
}

// RegistriesConfig configures the registry image channel; uploads go to the
// first entry.
type RegistriesConfig struct {
	Registries []string `yaml:"registries"`
}

// URLConfig configures a basic-auth HTTP channel.
type URLConfig struct {
	URL string `yaml:"url"`
}

// StagedURLConfig configures the two-phase generic channel. An empty
// staging path disables the staging step.
type StagedURLConfig struct {
	URL         string `yaml:"url"`
	StagingPath string `yaml:"staging_path"`
}

// Load reads, defaults and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	// Defaults are seeded before parsing so explicit zero values survive:
	// backoff_seconds: 0 is a valid policy, not an absent key.
	cfg := Config{Retry: RetryConfig{MaxAttempts: 3, BackoffSeconds: 5}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if c.Retry.BackoffSeconds < 0 {
		return fmt.Errorf("retry.backoff_seconds must not be negative")
	}

	if a := c.AWS; a != nil {
		if a.Signatures != nil && a.Signatures.Bucket == "" {
			return fmt.Errorf("aws.signatures.bucket is required")
		}
		if a.Generic != nil && a.Generic.Bucket == "" {
			return fmt.Errorf("aws.generic.bucket is required")
		}
	}

	if a := c.Artifactory; a != nil {
		if a.Username == "" || a.Password == "" {
			return fmt.Errorf("artifactory remote needs username and password")
		}
		if a.Images != nil && len(a.Images.Registries) == 0 {
			return fmt.Errorf("artifactory.images.registries must not be empty")
		}
		if a.Signatures != nil && a.Signatures.URL == "" {
			return fmt.Errorf("artifactory.signatures.url is required")
		}
		if a.Generic != nil && a.Generic.URL == "" {
			return fmt.Errorf("artifactory.generic.url is required")
		}
	}
	return nil
}

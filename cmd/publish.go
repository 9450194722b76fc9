package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"capstan/internal/config"
	"capstan/internal/remote"
	"capstan/internal/retry"
	"capstan/pkg/logger"
)

// publisher is the channel surface shared by both remotes.
type publisher interface {
	UploadImage(ctx context.Context, localRef, name, tag string) (string, error)
	UploadSignature(ctx context.Context, artifactType, sigName string, body io.Reader) (string, error)
	UploadGeneric(ctx context.Context, name string, body io.Reader, props remote.Properties) (string, error)
}

var (
	remoteName     string
	imageSpecs     []string
	signatureSpecs []string
	genericSpecs   []string
	propertySpecs  []string
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish artifacts to a configured remote",
	Long: `Publish feeds the given artifacts one by one into the matching channel
of the selected remote:

  --image      local image reference, optionally with a destination:
               myimg:1.0 or myimg:1.0=team/myimg:2024.1
  --signature  artifact-type/signature-name=path
  --generic    upload-name=path
  --property   key=value metadata for generic uploads, applied in the
               order given`,
	RunE: runPublish,
}

func init() {
	rootCmd.AddCommand(publishCmd)
	publishCmd.Flags().StringVar(&remoteName, "remote", "", "remote to publish to (aws or artifactory)")
	publishCmd.Flags().StringArrayVar(&imageSpecs, "image", nil, "container image to publish (repeatable)")
	publishCmd.Flags().StringArrayVar(&signatureSpecs, "signature", nil, "signature file to publish (repeatable)")
	publishCmd.Flags().StringArrayVar(&genericSpecs, "generic", nil, "generic artifact to publish (repeatable)")
	publishCmd.Flags().StringArrayVar(&propertySpecs, "property", nil, "metadata property for generic uploads (repeatable)")
	_ = publishCmd.MarkFlagRequired("remote")
}

func runPublish(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	policy := cfg.Retry.Policy()
	pub, err := buildRemote(ctx, cfg, policy)
	if err != nil {
		return err
	}

	props, err := parseProperties(propertySpecs)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	logger.Info("Publishing artifacts", "run_id", runID, "remote", remoteName)

	for _, spec := range imageSpecs {
		localRef, name, tag := parseImageSpec(spec)
		url, err := pub.UploadImage(ctx, localRef, name, tag)
		if err != nil {
			return fmt.Errorf("failed to publish image %s: %w", localRef, err)
		}
		logger.Info("Published image", "run_id", runID, "ref", url)
	}

	for _, spec := range signatureSpecs {
		name, file, err := splitSpec(spec)
		if err != nil {
			return err
		}
		artifactType, sigName, ok := strings.Cut(name, "/")
		if !ok {
			return fmt.Errorf("signature %q must be named artifact-type/signature-name", spec)
		}
		url, err := publishFile(policy, "publish signature "+name, file, func(body io.Reader) (string, error) {
			return pub.UploadSignature(ctx, artifactType, sigName, body)
		})
		if err != nil {
			return fmt.Errorf("failed to publish signature %s: %w", name, err)
		}
		logger.Info("Published signature", "run_id", runID, "url", url)
	}

	for _, spec := range genericSpecs {
		name, file, err := splitSpec(spec)
		if err != nil {
			return err
		}
		url, err := publishFile(policy, "publish "+name, file, func(body io.Reader) (string, error) {
			return pub.UploadGeneric(ctx, name, body, props)
		})
		if err != nil {
			return fmt.Errorf("failed to publish %s: %w", name, err)
		}
		logger.Info("Published artifact", "run_id", runID, "url", url)
	}

	return nil
}

// buildRemote constructs the selected remote and binds every channel the
// configuration describes. Channels without configuration stay unbound and
// fail descriptively on first use.
func buildRemote(ctx context.Context, cfg *config.Config, policy retry.Policy) (publisher, error) {
	switch remoteName {
	case "aws":
		a := cfg.AWS
		if a == nil {
			return nil, fmt.Errorf("no aws remote in configuration")
		}
		r := remote.NewAWSRemote(remote.Credentials{
			KeyID:     a.KeyID,
			SecretKey: a.SecretKey,
			Region:    a.Region,
		}, policy)
		if a.Images != nil && len(imageSpecs) > 0 {
			policyText, err := a.Images.PolicyText()
			if err != nil {
				return nil, err
			}
			if err := r.SetupImages(ctx, a.Images.PathPrefixes, policyText); err != nil {
				return nil, err
			}
		}
		if a.Signatures != nil {
			if err := r.SetupSignatures(ctx, a.Signatures.Bucket); err != nil {
				return nil, err
			}
		}
		if a.Generic != nil {
			if err := r.SetupGeneric(ctx, a.Generic.Bucket, a.Generic.Prefix); err != nil {
				return nil, err
			}
		}
		return r, nil

	case "artifactory":
		a := cfg.Artifactory
		if a == nil {
			return nil, fmt.Errorf("no artifactory remote in configuration")
		}
		r := remote.NewArtifactoryRemote(a.Username, a.Password, policy)
		if a.Images != nil && len(imageSpecs) > 0 {
			if err := r.SetupImages(a.Images.Registries); err != nil {
				return nil, err
			}
		}
		if a.Signatures != nil {
			r.SetupSignatures(a.Signatures.URL)
		}
		if a.Generic != nil {
			r.SetupGeneric(a.Generic.URL, a.Generic.StagingPath)
		}
		return r, nil

	default:
		return nil, fmt.Errorf("unknown remote %q (expected aws or artifactory)", remoteName)
	}
}

// parseImageSpec splits "localRef" or "localRef=name:tag". Destination name
// and tag default to the local values when omitted.
func parseImageSpec(spec string) (localRef, name, tag string) {
	localRef, dest, ok := strings.Cut(spec, "=")
	if !ok {
		return localRef, "", ""
	}
	if i := strings.LastIndex(dest, ":"); i >= 0 && !strings.Contains(dest[i+1:], "/") {
		return localRef, dest[:i], dest[i+1:]
	}
	return localRef, dest, ""
}

// splitSpec splits "name=path" artifact specs.
func splitSpec(spec string) (name, file string, err error) {
	name, file, ok := strings.Cut(spec, "=")
	if !ok || name == "" || file == "" {
		return "", "", fmt.Errorf("artifact %q must be given as name=path", spec)
	}
	return name, file, nil
}

func parseProperties(specs []string) (remote.Properties, error) {
	props := make(remote.Properties, 0, len(specs))
	for _, spec := range specs {
		key, value, ok := strings.Cut(spec, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("property %q must be given as key=value", spec)
		}
		props = append(props, remote.Property{Key: key, Value: value})
	}
	return props, nil
}

func uploadFile(file string, upload func(io.Reader) (string, error)) (string, error) {
	f, err := os.Open(file)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return upload(f)
}

// publishFile wraps a file upload in the retry policy. The file is reopened
// for every attempt; a retried upload must never read a drained stream.
func publishFile(policy retry.Policy, op, file string, upload func(io.Reader) (string, error)) (string, error) {
	return retry.Do1(policy, op, func() (string, error) {
		return uploadFile(file, upload)
	})
}

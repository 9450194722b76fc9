package remote

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	ecrtypes "github.com/aws/aws-sdk-go-v2/service/ecr/types"

	"capstan/internal/retry"
	"capstan/pkg/logger"
)

// ecrAPI is the slice of the ECR API the managed connector needs.
// *ecr.Client satisfies it; tests use a fake.
type ecrAPI interface {
	GetAuthorizationToken(ctx context.Context, params *ecr.GetAuthorizationTokenInput, optFns ...func(*ecr.Options)) (*ecr.GetAuthorizationTokenOutput, error)
	DescribeRepositories(ctx context.Context, params *ecr.DescribeRepositoriesInput, optFns ...func(*ecr.Options)) (*ecr.DescribeRepositoriesOutput, error)
	CreateRepository(ctx context.Context, params *ecr.CreateRepositoryInput, optFns ...func(*ecr.Options)) (*ecr.CreateRepositoryOutput, error)
	SetRepositoryPolicy(ctx context.Context, params *ecr.SetRepositoryPolicyInput, optFns ...func(*ecr.Options)) (*ecr.SetRepositoryPolicyOutput, error)
}

// ManagedConnector pushes container images to an AWS-managed registry. On
// top of the plain registry push it ensures the destination repository
// exists, applying the configured access policy to repositories it creates.
//
// The connector keeps a process-local catalog of repository names, filled by
// a full listing at construction and extended whenever this process creates
// a repository. A name in the catalog is assumed to exist remotely; the
// catalog may miss repositories created concurrently by others, but it never
// contains names that were not observed or created. The catalog is not
// synchronized: a connector must not be shared across goroutines without
// external locking.
type ManagedConnector struct {
	*RegistryConnector

	ecrc       ecrAPI
	prefixes   []string
	policyText string
	catalog    map[string]struct{}
}

// NewManagedConnector authorizes against ECR, derives the push endpoint and
// lists the existing repositories. The first path prefix, if any, is
// prepended to every upload name.
func NewManagedConnector(ctx context.Context, creds Credentials, prefixes []string, policyText string, policy retry.Policy) (*ManagedConnector, error) {
	cfg, err := creds.awsConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	cli, err := newDockerClient()
	if err != nil {
		return nil, err
	}
	return newManagedConnector(ctx, ecr.NewFromConfig(cfg), cli, prefixes, policyText, policy)
}

func newManagedConnector(ctx context.Context, ecrc ecrAPI, api imageAPI, prefixes []string, policyText string, policy retry.Policy) (*ManagedConnector, error) {
	host, username, password, err := registryLogin(ctx, ecrc)
	if err != nil {
		return nil, err
	}
	catalog, err := listRepositories(ctx, ecrc)
	if err != nil {
		return nil, err
	}
	if len(prefixes) == 0 {
		prefixes = []string{""}
	}
	return &ManagedConnector{
		RegistryConnector: newRegistryConnector([]string{host}, username, password, policy, api),
		ecrc:              ecrc,
		prefixes:          prefixes,
		policyText:        policyText,
		catalog:           catalog,
	}, nil
}

// registryLogin exchanges AWS credentials for a registry token. The token is
// a base64 "user:password" pair, the endpoint carries the registry host.
func registryLogin(ctx context.Context, ecrc ecrAPI) (host, username, password string, err error) {
	resp, err := ecrc.GetAuthorizationToken(ctx, &ecr.GetAuthorizationTokenInput{})
	if err != nil {
		return "", "", "", fmt.Errorf("failed to obtain registry token: %w", err)
	}
	if len(resp.AuthorizationData) == 0 {
		return "", "", "", fmt.Errorf("registry token response carries no authorization data")
	}
	data := resp.AuthorizationData[0]

	endpoint, err := url.Parse(aws.ToString(data.ProxyEndpoint))
	if err != nil {
		return "", "", "", fmt.Errorf("invalid registry endpoint %q: %w", aws.ToString(data.ProxyEndpoint), err)
	}
	raw, err := base64.StdEncoding.DecodeString(aws.ToString(data.AuthorizationToken))
	if err != nil {
		return "", "", "", fmt.Errorf("failed to decode registry token: %w", err)
	}
	username, password, ok := strings.Cut(string(raw), ":")
	if !ok {
		return "", "", "", fmt.Errorf("registry token is not a user:password pair")
	}

	logger.Info("Registry token obtained", "registry", endpoint.Host)
	return endpoint.Host, username, password, nil
}

func listRepositories(ctx context.Context, ecrc ecrAPI) (map[string]struct{}, error) {
	catalog := make(map[string]struct{})
	paginator := ecr.NewDescribeRepositoriesPaginator(ecrc, &ecr.DescribeRepositoriesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list repositories: %w", err)
		}
		for _, repo := range page.Repositories {
			catalog[aws.ToString(repo.RepositoryName)] = struct{}{}
		}
	}
	return catalog, nil
}

// UploadImage ensures the destination repository exists, then delegates to
// the plain registry push.
func (c *ManagedConnector) UploadImage(ctx context.Context, localRef, name, tag string) (string, error) {
	if name == "" {
		localName, _, err := splitRef(localRef)
		if err != nil {
			return "", err
		}
		name = localName
	}
	uploadPath := c.prefixes[0] + name

	if err := c.ensureRepository(ctx, uploadPath); err != nil {
		return "", err
	}
	return c.RegistryConnector.UploadImage(ctx, localRef, uploadPath, tag)
}

// ensureRepository creates the repository unless the catalog already knows
// it. Creation is retried on RepositoryNotFound as well: freshly created
// repositories can take a moment to become visible to the policy call.
func (c *ManagedConnector) ensureRepository(ctx context.Context, name string) error {
	if _, ok := c.catalog[name]; ok {
		return nil
	}

	policy := c.retry.Extend(func(err error) bool {
		var nf *ecrtypes.RepositoryNotFoundException
		return errors.As(err, &nf)
	})
	err := retry.Do(policy, "create repository "+name, func() error {
		return c.createRepository(ctx, name)
	})
	if err != nil {
		return err
	}

	c.catalog[name] = struct{}{}
	return nil
}

func (c *ManagedConnector) createRepository(ctx context.Context, name string) error {
	out, err := c.ecrc.CreateRepository(ctx, &ecr.CreateRepositoryInput{
		RepositoryName: aws.String(name),
	})
	if err != nil {
		var exists *ecrtypes.RepositoryAlreadyExistsException
		if !errors.As(err, &exists) {
			return fmt.Errorf("failed to create repository %s: %w", name, err)
		}
		// Concurrent creation by another publisher counts as success.
		logger.Info("Repository already exists", "repository", name)
	} else {
		logger.Info("Created repository", "repository", name, "uri", aws.ToString(out.Repository.RepositoryUri))
	}

	if c.policyText != "" {
		_, err := c.ecrc.SetRepositoryPolicy(ctx, &ecr.SetRepositoryPolicyInput{
			RepositoryName: aws.String(name),
			PolicyText:     aws.String(c.policyText),
		})
		if err != nil {
			return fmt.Errorf("failed to set policy on repository %s: %w", name, err)
		}
	}
	return nil
}

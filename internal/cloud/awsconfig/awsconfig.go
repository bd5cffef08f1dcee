// Package awsconfig loads the aws.Config shared by every AWS-backed
// binding (currently just the sqsbroker queue.Broker), grounded on the
// teacher's internal/cloud/awsconfig package. Trimmed to the default
// credential chain plus an optional static override: this domain has no
// equivalent of the teacher's cross-account assume-role provisioning
// flow, so stscreds is dropped.
package awsconfig

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// Options controls AWS SDK configuration loading.
type Options struct {
	Region string

	// StaticAccessKeyID/StaticSecretAccessKey, if both set, override the
	// default credential chain (env vars, shared config, instance/task
	// role) with a fixed credential pair — useful for local SQS-compatible
	// endpoints (e.g. localstack) that don't honor IAM.
	StaticAccessKeyID     string
	StaticSecretAccessKey string
}

// Load builds an aws.Config for opts.Region using the default credential
// chain, or a static credential pair if both are supplied.
func Load(ctx context.Context, opts Options) (aws.Config, error) {
	if opts.Region == "" {
		return aws.Config{}, fmt.Errorf("awsconfig: region is required")
	}

	loadOptions := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}
	if opts.StaticAccessKeyID != "" && opts.StaticSecretAccessKey != "" {
		loadOptions = append(loadOptions, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.StaticAccessKeyID, opts.StaticSecretAccessKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("awsconfig: load default config: %w", err)
	}
	return cfg, nil
}

// Package awsclient builds AWS SDK clients for ebs-tuner.
package awsclient

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"

	"github.com/yairfalse/ebs-tuner/internal/config"
)

// LoadConfig resolves AWS credentials and region. Empty settings defer to the
// SDK default chain (environment, shared config, Lambda execution role).
func LoadConfig(ctx context.Context, cfg config.AWSConfig) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

// NewEC2 creates an EC2 client.
func NewEC2(ctx context.Context, cfg config.AWSConfig) (*ec2.Client, error) {
	awsCfg, err := LoadConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return ec2.NewFromConfig(awsCfg), nil
}

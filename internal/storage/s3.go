// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Options configures an S3Backend.
type S3Options struct {
	Bucket string
	Region string
	Prefix string // prepended to every key, e.g. "beamd/"

	// Static credentials; if empty, the default credential chain
	// (environment, shared config, instance role) is used.
	AccessKeyID     string
	SecretAccessKey string
}

// S3Backend puts beamed streams into an S3-compatible bucket: the
// object-storage analogue of LocalBackend, and the consumer-side home
// for beamed File chunks and the assembled byte stream alike.
type S3Backend struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Backend builds an S3Backend, loading AWS config per opts.
func NewS3Backend(ctx context.Context, opts S3Options) (*S3Backend, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("storage: s3 bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("storage: loading aws config: %w", err)
	}

	return &S3Backend{
		client: s3.NewFromConfig(cfg),
		bucket: opts.Bucket,
		prefix: opts.Prefix,
	}, nil
}

// Put uploads r to s3://bucket/prefix+key via PutObject. Size is passed
// through as ContentLength when known (size >= 0); the SDK otherwise
// buffers to determine it.
func (b *S3Backend) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.prefix + key),
		Body:   r,
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}

	if _, err := b.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("storage: s3 put %s: %w", key, err)
	}
	return nil
}

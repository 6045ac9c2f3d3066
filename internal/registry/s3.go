package registry

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const (
	defaultS3Region = "us-east-1"
	defaultS3Key    = "celldyn/catalog.yaml"

	// maxCatalogBytes bounds the catalog object read into memory.
	maxCatalogBytes = 4 << 20
)

// objectGetter is the subset of *s3.Client the catalog loader needs.
type objectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// OpenS3 fetches a YAML catalog object once and serves it from memory.
// Credentials come from the default AWS chain.
func OpenS3(ctx context.Context, opts S3Options) (*Memory, error) {
	client, err := newS3Client(ctx, opts)
	if err != nil {
		return nil, err
	}
	return loadS3Catalog(ctx, client, opts)
}

func newS3Client(ctx context.Context, opts S3Options) (*s3.Client, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := opts.Region
	if region == "" {
		region = defaultS3Region
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.PathStyle {
			o.UsePathStyle = true
		}
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	}), nil
}

func loadS3Catalog(ctx context.Context, client objectGetter, opts S3Options) (*Memory, error) {
	key := opts.Key
	if key == "" {
		key = defaultS3Key
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(opts.Bucket), Key: aws.String(key)})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", opts.Bucket, key, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(out.Body, maxCatalogBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read s3://%s/%s: %w", opts.Bucket, key, err)
	}
	if len(data) > maxCatalogBytes {
		return nil, fmt.Errorf("catalog s3://%s/%s exceeds %d bytes", opts.Bucket, key, maxCatalogBytes)
	}

	lines, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("catalog s3://%s/%s: %w", opts.Bucket, key, err)
	}
	return NewMemory(lines)
}

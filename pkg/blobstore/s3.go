// Package blobstore archives original uploaded files in an S3-compatible
// bucket (AWS S3 or MinIO). The parsed raw rows in Postgres remain the
// system of record for ETL; the archive exists so a dataset can be
// re-parsed later.
package blobstore

import (
	"context"
	"fmt"
	"io"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Store is the minimal blob surface the engine needs.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// Config holds S3 construction parameters.
type Config struct {
	Bucket    string
	Region    string
	Endpoint  string // Optional; enables a custom endpoint (e.g. MinIO)
	PathStyle bool
}

// S3Store implements Store over a single bucket. Keys map to object keys
// directly.
type S3Store struct {
	client *s3.Client
	bucket string
}

var _ Store = (*S3Store)(nil)

// NewS3 creates an S3 blob store. Credentials come from the default AWS
// chain.
func NewS3(ctx context.Context, cfg Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &S3Store{client: client, bucket: cfg.Bucket}, nil
}

// Put stores an object under key.
func (s *S3Store) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	input := &s3.PutObjectInput{Bucket: &s.bucket, Key: &key, Body: r}
	if contentType != "" {
		input.ContentType = &contentType
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Get retrieves an object. The caller owns the returned reader.
func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return out.Body, nil
}

// DatasetKey builds the archive key for a dataset's original file.
func DatasetKey(projectID, datasetID, filename string) string {
	filename = strings.ReplaceAll(filename, "/", "_")
	return fmt.Sprintf("projects/%s/datasets/%s/%s", projectID, datasetID, filename)
}

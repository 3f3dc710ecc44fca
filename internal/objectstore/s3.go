package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config configures an S3-compatible backend.
type S3Config struct {
	Region string
	// Endpoint targets a non-AWS implementation (MinIO, R2, a test server);
	// it switches the client to path-style addressing.
	Endpoint string
	// BucketPrefix is prepended to the logical bucket names.
	BucketPrefix string
	// PublicBaseURL serves objects as <base>/<bucket>/<path>.
	PublicBaseURL string
	// Static credentials; when empty the default AWS chain is used.
	AccessKeyID     string
	SecretAccessKey string
}

// S3Store stores objects in S3 buckets.
type S3Store struct {
	client        *s3.Client
	bucketPrefix  string
	publicBaseURL string
}

// NewS3Store loads the AWS configuration and creates the client.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.PublicBaseURL == "" {
		return nil, fmt.Errorf("s3: public base URL is required")
	}

	opts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})

	return &S3Store{
		client:        client,
		bucketPrefix:  cfg.BucketPrefix,
		publicBaseURL: strings.TrimSuffix(cfg.PublicBaseURL, "/"),
	}, nil
}

func (s *S3Store) bucket(name string) string {
	return s.bucketPrefix + name
}

// Upload puts the object. Without Upsert the put is conditional on the key
// being absent.
func (s *S3Store) Upload(ctx context.Context, obj Object) error {
	input := &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket(obj.Bucket)),
		Key:          aws.String(obj.Path),
		Body:         bytes.NewReader(obj.Data),
		ContentType:  aws.String(obj.ContentType),
		CacheControl: aws.String("max-age=3600"),
	}
	if !obj.Upsert {
		input.IfNoneMatch = aws.String("*")
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("s3 put %s/%s: %w", s.bucket(obj.Bucket), obj.Path, err)
	}
	return nil
}

func (s *S3Store) PublicURL(bucket, objectPath string) string {
	return s.publicBaseURL + "/" + s.bucket(bucket) + "/" + strings.TrimPrefix(objectPath, "/")
}

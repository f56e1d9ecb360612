package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/3leaps/kiln/pkg/build"
)

// DefaultAWSRegion is the fallback region for AWS S3 when not specified.
const DefaultAWSRegion = "us-east-1"

// Store uploads build artifacts to remote storage.
type Store interface {
	// Put uploads a single object under the given key.
	Put(ctx context.Context, key string, body io.Reader, contentLength int64) error

	// URI returns the remote URI an uploaded key resolves to.
	URI(key string) string

	// Close releases any resources held by the store.
	Close() error
}

// StoreConfig configures an S3-backed artifact store.
//
// Authentication follows AWS SDK v2's default credential chain unless
// explicit credentials are provided. For S3-compatible stores (MinIO,
// Wasabi, DigitalOcean Spaces), set Endpoint and typically ForcePathStyle.
type StoreConfig struct {
	// Bucket is the S3 bucket name (required).
	Bucket string

	// Prefix is prepended to every uploaded key.
	Prefix string

	// Region is the AWS region. For AWS S3 it defaults to us-east-1 when
	// not specified via config or environment. When Endpoint is set, no
	// default is applied.
	Region string

	// Endpoint is a custom endpoint URL for S3-compatible stores.
	// Leave empty for AWS S3.
	Endpoint string

	// Profile is the AWS profile name to use from shared config.
	Profile string

	// AccessKeyID is an explicit access key. If set, SecretAccessKey must
	// also be set. Takes precedence over the default credential chain.
	AccessKeyID string

	// SecretAccessKey is an explicit secret key. Required if AccessKeyID is set.
	SecretAccessKey string

	// ForcePathStyle forces path-style URLs (bucket in path, not subdomain).
	// Required for most S3-compatible stores.
	ForcePathStyle bool
}

// Validate checks that required configuration is present.
func (c *StoreConfig) Validate() error {
	if c.Bucket == "" {
		return &StoreError{Op: "Validate", Err: errors.New("bucket name is required")}
	}
	if (c.AccessKeyID != "") != (c.SecretAccessKey != "") {
		return &StoreError{
			Op:     "Validate",
			Bucket: c.Bucket,
			Err:    errors.New("access key ID and secret access key must be provided together"),
		}
	}
	return nil
}

// S3Store implements Store on AWS S3 and S3-compatible storage.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

var _ Store = (*S3Store)(nil)

// NewS3Store creates an artifact store backed by S3.
func NewS3Store(ctx context.Context, cfg StoreConfig) (*S3Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, &StoreError{Op: "New", Bucket: cfg.Bucket, Err: err}
	}

	s3Opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}
		},
	}
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	return &S3Store{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// loadAWSConfig builds the AWS configuration with appropriate credentials.
func loadAWSConfig(ctx context.Context, cfg StoreConfig) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error

	// Only apply explicit region if set; let the SDK resolve from
	// env/profile first.
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		staticCreds := credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)
		opts = append(opts, config.WithCredentialsProvider(staticCreds))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}

	if awsCfg.Region == "" && cfg.Endpoint == "" {
		awsCfg.Region = DefaultAWSRegion
	}

	return awsCfg, nil
}

// Put uploads a single object.
func (s *S3Store) Put(ctx context.Context, key string, body io.Reader, contentLength int64) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectKey(key)),
		Body:          body,
		ContentLength: &contentLength,
	}

	_, err := s.client.PutObject(ctx, input)
	if err != nil {
		return s.wrapError("Put", key, err)
	}
	return nil
}

// URI returns the s3:// URI for an uploaded key.
func (s *S3Store) URI(key string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, s.objectKey(key))
}

// Close releases any resources held by the store.
// The S3 client doesn't require explicit cleanup, but this satisfies the interface.
func (s *S3Store) Close() error {
	return nil
}

func (s *S3Store) objectKey(key string) string {
	key = strings.TrimPrefix(key, "/")
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

// wrapError converts S3 errors to store errors with appropriate sentinels.
func (s *S3Store) wrapError(op, key string, err error) error {
	wrapped := &StoreError{
		Op:     op,
		Bucket: s.bucket,
		Key:    key,
		Err:    err,
	}

	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &noSuchBucket) {
		wrapped.Err = ErrBucketNotFound
		return wrapped
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchBucket":
			wrapped.Err = ErrBucketNotFound
		case "AccessDenied", "Forbidden":
			wrapped.Err = ErrAccessDenied
		case "InvalidAccessKeyId", "SignatureDoesNotMatch":
			wrapped.Err = ErrInvalidCredentials
		case "SlowDown", "Throttling", "RequestLimitExceeded":
			wrapped.Err = ErrThrottled
		case "ServiceUnavailable", "InternalError":
			wrapped.Err = ErrStoreUnavailable
		}
		return wrapped
	}

	return wrapped
}

// Mirror uploads the given artifacts to the store under pkgName/ and
// returns a copy of the slice with RemoteURI populated.
//
// The first upload failure aborts the mirror; already-uploaded objects
// are left in place.
func Mirror(ctx context.Context, store Store, packageDir, pkgName string, artifacts []build.Artifact) ([]build.Artifact, error) {
	mirrored := make([]build.Artifact, len(artifacts))
	copy(mirrored, artifacts)

	for i, a := range mirrored {
		key := path.Join(pkgName, a.Path)

		f, err := os.Open(filepath.Join(packageDir, filepath.FromSlash(a.Path)))
		if err != nil {
			return nil, fmt.Errorf("open artifact for upload: %w", err)
		}

		err = store.Put(ctx, key, f, a.SizeBytes)
		_ = f.Close()
		if err != nil {
			return nil, err
		}

		mirrored[i].RemoteURI = store.URI(key)
	}

	return mirrored, nil
}

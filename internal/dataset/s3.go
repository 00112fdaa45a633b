package dataset

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config selects the object store behind s3:// locators.
type S3Config struct {
	Region    string
	Endpoint  string // optional, for MinIO and other S3-compatible stores
	PathStyle bool
	// Static keys override the default credential chain when both are set.
	AccessKeyID     string
	SecretAccessKey string
	// Anonymous sends unsigned requests, for public buckets.
	Anonymous bool
}

// S3API is the subset of the S3 client the fetcher uses.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Fetcher reads s3://bucket/key locators. The client is built on first use
// so commands that never touch object storage skip AWS config resolution. A
// failed build is retried on the next Fetch.
type S3Fetcher struct {
	cfg    S3Config
	build  func(context.Context, S3Config) (S3API, error)
	mu     sync.Mutex
	client S3API
}

// NewS3Fetcher returns a fetcher that resolves credentials from the default AWS chain.
func NewS3Fetcher(cfg S3Config) *S3Fetcher {
	return &S3Fetcher{cfg: cfg, build: func(ctx context.Context, cfg S3Config) (S3API, error) {
		return newS3Client(ctx, cfg)
	}}
}

// NewS3FetcherWithClient wires a prebuilt client (used in tests).
func NewS3FetcherWithClient(client S3API) *S3Fetcher {
	return &S3Fetcher{client: client}
}

func (*S3Fetcher) CanFetch(locator string) bool {
	return strings.HasPrefix(strings.ToLower(locator), "s3://")
}

func (f *S3Fetcher) Fetch(ctx context.Context, locator string) (io.ReadCloser, error) {
	bucket, key, err := splitS3Locator(locator)
	if err != nil {
		return nil, err
	}
	client, err := f.s3Client(ctx)
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: &bucket, Key: &key})
	if err != nil {
		return nil, fmt.Errorf("s3 get %s/%s: %w", bucket, key, err)
	}
	return out.Body, nil
}

// s3Client returns the cached client, building it on first use. Only a
// successful build is cached, and the build does not inherit the caller's
// cancellation.
func (f *S3Fetcher) s3Client(ctx context.Context) (S3API, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.client != nil {
		return f.client, nil
	}
	c, err := f.build(context.WithoutCancel(ctx), f.cfg)
	if err != nil {
		return nil, err
	}
	f.client = c
	return c, nil
}

func newS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	switch {
	case cfg.Anonymous:
		opts = append(opts, config.WithCredentialsProvider(aws.AnonymousCredentials{}))
	case cfg.AccessKeyID != "" && cfg.SecretAccessKey != "":
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

func splitS3Locator(locator string) (bucket, key string, err error) {
	rest := locator[len("s3://"):]
	i := strings.IndexByte(rest, '/')
	if i <= 0 || i == len(rest)-1 {
		return "", "", fmt.Errorf("%w: %q (want s3://bucket/key)", ErrUnsupportedSource, locator)
	}
	return rest[:i], rest[i+1:], nil
}

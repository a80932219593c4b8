package source

import (
	"context"
	"io"
	"path"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rotisserie/eris"
)

// S3API is the subset of the S3 client used here.
type S3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config holds the bucket location and client overrides.
type S3Config struct {
	Bucket    string
	Prefix    string
	Pattern   string
	Region    string
	Endpoint  string // optional; S3-compatible endpoint such as MinIO
	PathStyle bool
}

// S3 lists and reads objects under a bucket prefix.
type S3 struct {
	client  S3API
	bucket  string
	prefix  string
	pattern string
}

// NewS3 builds an S3 source using the default AWS credential chain.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, eris.New("source: s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, eris.Wrap(err, "source: load aws config")
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewS3WithClient(client, cfg), nil
}

// NewS3WithClient builds an S3 source on an existing client.
func NewS3WithClient(client S3API, cfg S3Config) *S3 {
	return &S3{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix, pattern: cfg.Pattern}
}

// List returns the keys under the prefix whose base name matches the
// pattern, sorted.
func (s *S3) List(ctx context.Context) ([]string, error) {
	var keys []string
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, eris.Wrapf(err, "source: list s3://%s/%s", s.bucket, s.prefix)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if ok, err := s.matches(key); err != nil {
				return nil, err
			} else if ok {
				keys = append(keys, key)
			}
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *S3) matches(key string) (bool, error) {
	if s.pattern == "" {
		return true, nil
	}
	ok, err := path.Match(s.pattern, path.Base(key))
	if err != nil {
		return false, eris.Wrapf(err, "source: bad pattern %q", s.pattern)
	}
	return ok, nil
}

// Open streams the object body.
func (s *S3) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		return nil, eris.Wrapf(err, "source: get s3://%s/%s", s.bucket, key)
	}
	return out.Body, nil
}

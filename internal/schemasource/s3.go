package schemasource

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"rowgraph/internal/naming"
	"rowgraph/internal/schemadiff"
)

// S3API is the subset of the S3 client used to read schema documents.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Config holds S3 client parameters. Empty credentials fall back to the
// default AWS credentials chain.
type S3Config struct {
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	PathStyle       bool   `mapstructure:"path_style"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	SessionToken    string `mapstructure:"session_token"`
}

// NewS3Client creates an S3 client from cfg.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
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

// S3Source loads a snapshot from one object, or from every document under a
// prefix when the key is empty or ends with "/".
type S3Source struct {
	client S3API
	Bucket string
	Key    string
	namer  *naming.Namer
}

// NewS3Source parses an s3://bucket/key location.
func NewS3Source(client S3API, location string, namer *naming.Namer) (*S3Source, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("invalid s3 location: %w", err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return nil, fmt.Errorf("invalid s3 location %q: expected s3://bucket/key", location)
	}
	return &S3Source{
		client: client,
		Bucket: u.Host,
		Key:    strings.TrimPrefix(u.Path, "/"),
		namer:  namer,
	}, nil
}

// Location returns the s3:// URL of the source.
func (s *S3Source) Location() string {
	return "s3://" + s.Bucket + "/" + s.Key
}

func (s *S3Source) isPrefix() bool {
	return s.Key == "" || strings.HasSuffix(s.Key, "/")
}

// Load reads the object or the documents under the prefix in key order.
func (s *S3Source) Load(ctx context.Context) (schemadiff.Snapshot, error) {
	keys := []string{s.Key}
	if s.isPrefix() {
		var err error
		keys, err = s.list(ctx)
		if err != nil {
			return schemadiff.Snapshot{}, err
		}
	}

	var snapshot schemadiff.Snapshot
	for _, key := range keys {
		next, err := s.get(ctx, key)
		if err != nil {
			return schemadiff.Snapshot{}, err
		}
		snapshot = merge(snapshot, next)
	}
	return snapshot, nil
}

func (s *S3Source) list(ctx context.Context) ([]string, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(s.Bucket)}
	if s.Key != "" {
		input.Prefix = aws.String(s.Key)
	}

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list s3 objects: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			rest := strings.TrimPrefix(key, s.Key)
			if strings.Contains(rest, "/") || !isDocument(key) {
				continue
			}
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return nil, &NotFoundError{Path: s.Location()}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *S3Source) get(ctx context.Context, key string) (schemadiff.Snapshot, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return schemadiff.Snapshot{}, &NotFoundError{Path: "s3://" + s.Bucket + "/" + key}
		}
		return schemadiff.Snapshot{}, fmt.Errorf("failed to get s3 object %s: %w", key, err)
	}
	defer out.Body.Close()

	snapshot, err := decodeDocument(out.Body, s.namer)
	if err != nil {
		return schemadiff.Snapshot{}, fmt.Errorf("%s: %w", key, err)
	}
	return snapshot, nil
}

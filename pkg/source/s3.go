package source

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	rlerrors "github.com/routelens/routelens/pkg/errors"
)

// S3Config holds S3 source configuration.
type S3Config struct {
	Bucket string
	// Prefix is the "folder" holding the profile files, with or without a
	// trailing slash.
	Prefix string
	Region string

	// Endpoint overrides the default S3 endpoint (for MinIO, LocalStack)
	Endpoint     string
	UsePathStyle bool

	// Credentials (optional - uses default chain if not provided)
	AccessKeyID     string
	SecretAccessKey string

	OperationTimeout time.Duration
}

// S3 serves files stored under a bucket prefix.
type S3 struct {
	cfg    S3Config
	prefix string
	client *s3.Client
}

// NewS3 creates an S3 source.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, rlerrors.New(rlerrors.CodeConfig, "s3 source requires a bucket")
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 30 * time.Second
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, rlerrors.Wrap(err, rlerrors.CodeS3, "failed to load AWS config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &S3{cfg: cfg, prefix: prefix, client: client}, nil
}

func (s *S3) String() string {
	return fmt.Sprintf("s3://%s/%s", s.cfg.Bucket, s.prefix)
}

func (s *S3) key(name string) string { return s.prefix + name }

// ReadText fetches name, falling back to name.gz when the plain object is
// missing.
func (s *S3) ReadText(ctx context.Context, name string) (string, error) {
	data, err := s.read(ctx, name)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ReadJSON fetches name and decodes it into v.
func (s *S3) ReadJSON(ctx context.Context, name string, v any) error {
	data, err := s.read(ctx, name)
	if err != nil {
		return err
	}
	return decodeJSON(name, data, v)
}

func (s *S3) read(ctx context.Context, name string) ([]byte, error) {
	data, err := s.get(ctx, s.key(name))
	if rlerrors.IsNotFound(err) && !IsGzip(name) {
		if gz, gzErr := s.get(ctx, s.key(name)+".gz"); gzErr == nil {
			return gz, nil
		}
	}
	return data, err
}

func (s *S3) get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, s.mapError(key, err)
	}
	defer out.Body.Close()

	data, err := readAll(out.Body, IsGzip(key))
	if err != nil {
		return nil, rlerrors.ReadFailed(s.uri(key), err)
	}
	return data, nil
}

// ListFiles lists the objects directly under the prefix whose uncompressed
// name matches pattern.
func (s *S3) ListFiles(ctx context.Context, pattern *regexp.Regexp) ([]string, error) {
	seen := make(map[string]bool)
	var names []string
	var token *string

	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.cfg.Bucket),
			Prefix:            aws.String(s.prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, s.mapError(s.prefix, err)
		}

		for _, obj := range out.Contents {
			name, ok := relativeName(s.prefix, aws.ToString(obj.Key))
			if !ok {
				continue
			}
			name = StripCompression(name)
			if seen[name] || !pattern.MatchString(name) {
				continue
			}
			seen[name] = true
			names = append(names, name)
		}

		if !aws.ToBool(out.IsTruncated) {
			break
		}
		token = out.NextContinuationToken
	}

	sort.Strings(names)
	return names, nil
}

// relativeName strips prefix from key and rejects keys in nested folders.
func relativeName(prefix, key string) (string, bool) {
	if !strings.HasPrefix(key, prefix) {
		return "", false
	}
	name := key[len(prefix):]
	if name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}

func (s *S3) uri(key string) string {
	return "s3://" + s.cfg.Bucket + "/" + key
}

func (s *S3) mapError(key string, err error) error {
	var noKey *types.NoSuchKey
	var noBucket *types.NoSuchBucket
	switch {
	case errors.As(err, &noKey):
		return rlerrors.FileNotFound(s.uri(key))
	case errors.As(err, &noBucket):
		return rlerrors.FileNotFound("s3://" + s.cfg.Bucket)
	case errors.Is(err, context.Canceled):
		return rlerrors.ContextCanceled("s3 " + key)
	case errors.Is(err, context.DeadlineExceeded):
		return rlerrors.Wrap(err, rlerrors.CodeTimeout, "s3 request timed out").WithContext("key", s.uri(key))
	default:
		return rlerrors.Wrap(err, rlerrors.CodeS3, "s3 request failed").WithContext("key", s.uri(key))
	}
}

package secrets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// ObjectAPI is the part of *s3.Client the backend needs.
type ObjectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Options configures an S3-compatible endpoint such as MinIO.
type S3Options struct {
	AccessKey    string
	SecretKey    string
	Region       string
	BaseEndpoint string
}

var loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

// NewS3Client builds a path-style S3 client with static credentials.
func NewS3Client(ctx context.Context, opts S3Options) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(opts.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKey,
			opts.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(opts.BaseEndpoint)
		}
		o.UsePathStyle = true
	}), nil
}

// S3Backend stores each key as one object under prefix in bucket.
type S3Backend struct {
	api    ObjectAPI
	bucket string
	prefix string
}

func NewS3Backend(api ObjectAPI, bucket, prefix string) *S3Backend {
	return &S3Backend{api: api, bucket: bucket, prefix: prefix}
}

func (b *S3Backend) Read(ctx context.Context, key string) ([]byte, error) {
	out, err := b.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.prefix + key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrAbsent
		}
		return nil, err
	}
	defer out.Body.Close()

	v, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read object body: %w", err)
	}
	if len(v) == 0 {
		return nil, ErrAbsent
	}
	return v, nil
}

func (b *S3Backend) Write(ctx context.Context, key string, value []byte) error {
	_, err := b.api.PutObject(ctx, b.putInput(key, value))
	return err
}

// CreateIfAbsent relies on conditional writes (If-None-Match: *). When another
// writer got there first the stored object is read back.
func (b *S3Backend) CreateIfAbsent(ctx context.Context, key string, value []byte) ([]byte, error) {
	in := b.putInput(key, value)
	in.IfNoneMatch = aws.String("*")

	_, err := b.api.PutObject(ctx, in)
	if err == nil {
		return value, nil
	}
	if !isPreconditionFailed(err) {
		return nil, err
	}

	stored, err := b.Read(ctx, key)
	if errors.Is(err, ErrAbsent) {
		// present but empty: overwrite unconditionally
		if err := b.Write(ctx, key, value); err != nil {
			return nil, err
		}
		return value, nil
	}
	return stored, err
}

func (b *S3Backend) putInput(key string, value []byte) *s3.PutObjectInput {
	return &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(b.prefix + key),
		Body:        bytes.NewReader(value),
		ContentType: aws.String("text/plain"),
	}
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	return errors.As(err, &nf)
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "PreconditionFailed" || apiErr.ErrorCode() == "ConditionalRequestConflict"
	}
	return false
}

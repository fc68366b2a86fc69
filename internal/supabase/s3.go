package supabase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds credentials for the S3-compatible storage endpoint
type S3Config struct {
	Region    string
	AccessKey string
	SecretKey string
	// Endpoint defaults to <project url>/storage/v1/s3
	Endpoint string
}

type s3Uploader struct {
	client *s3.Client
}

func newS3Uploader(ctx context.Context, base *url.URL, cfg S3Config) (*s3Uploader, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = base.JoinPath(storagePath, "s3").String()
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	return &s3Uploader{client: client}, nil
}

func (u *s3Uploader) Upload(ctx context.Context, bucket, name, contentType string, body io.Reader) error {
	// the signer needs a seekable body with a known length
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("failed to read upload body: %w", err)
	}

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(name),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("failed to put object: %w", err)
	}
	return nil
}

package s3

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"fondos/internal/config"
	"fondos/internal/domain"
	"fondos/internal/port"
)

// MaxWorkbookBytes caps the size of a workbook fetched from a bucket. The
// whole file is held in memory while it is decoded.
const MaxWorkbookBytes = 64 << 20

// API is the subset of the S3 client used for workbooks and reports.
type API interface {
	manager.UploadAPIClient
	manager.DownloadAPIClient
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

type objectStore struct {
	api        API
	uploader   *manager.Uploader
	downloader *manager.Downloader
	maxBytes   int64
}

// NewS3Client creates an ObjectStorage over S3 or an S3-compatible endpoint.
func NewS3Client(ctx context.Context, cfg *config.S3Config) (port.ObjectStorage, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3ClientWithAPI(client, MaxWorkbookBytes), nil
}

// NewS3ClientWithAPI creates an ObjectStorage over an existing client.
// Objects larger than maxBytes are refused before they are fetched.
func NewS3ClientWithAPI(api API, maxBytes int64) port.ObjectStorage {
	return &objectStore{
		api:        api,
		uploader:   manager.NewUploader(api),
		downloader: manager.NewDownloader(api),
		maxBytes:   maxBytes,
	}
}

// Upload stores a report object. Metadata keys travel as x-amz-meta headers.
func (c *objectStore) Upload(ctx context.Context, input port.UploadInput) (*port.UploadOutput, error) {
	result, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(input.Bucket),
		Key:         aws.String(input.Key),
		Body:        input.Body,
		ContentType: aws.String(input.ContentType),
		Metadata:    input.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("uploading s3://%s/%s: %w", input.Bucket, input.Key, err)
	}
	return &port.UploadOutput{
		Location: result.Location,
		ETag:     aws.ToString(result.ETag),
	}, nil
}

// Download fetches a whole workbook. A missing object is reported as
// domain.ErrInputNotFound.
func (c *objectStore) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	head, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return nil, fmt.Errorf("%w: s3://%s/%s", domain.ErrInputNotFound, bucket, key)
		}
		return nil, fmt.Errorf("inspecting s3://%s/%s: %w", bucket, key, err)
	}

	size := aws.ToInt64(head.ContentLength)
	if c.maxBytes > 0 && size > c.maxBytes {
		return nil, fmt.Errorf("s3://%s/%s is %d bytes, over the %d byte limit", bucket, key, size, c.maxBytes)
	}

	buf := manager.NewWriteAtBuffer(make([]byte, 0, size))
	if _, err := c.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		return nil, fmt.Errorf("downloading s3://%s/%s: %w", bucket, key, err)
	}
	return buf.Bytes(), nil
}

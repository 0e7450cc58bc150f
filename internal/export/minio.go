package export

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

const defaultRegion = "us-east-1"

// MinioConfig holds connection settings for an S3-compatible target.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
	Bucket    string
	Prefix    string
	Logger    *zap.Logger
}

// MinioExporter uploads photos as objects under bucket/prefix.
type MinioExporter struct {
	client *minio.Client
	bucket string
	prefix string
	logger *zap.Logger
}

func NewMinioExporter(cfg MinioConfig) (*MinioExporter, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errMissingBucket
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("minio endpoint is required for bucket %q", cfg.Bucket)
	}
	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MinioExporter{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: logger,
	}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (e *MinioExporter) EnsureBucket(ctx context.Context) error {
	exists, err := e.client.BucketExists(ctx, e.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", e.bucket, err)
	}
	if exists {
		return nil
	}
	if err := e.client.MakeBucket(ctx, e.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %q: %w", e.bucket, err)
	}
	e.logger.Info("created export bucket", zap.String("bucket", e.bucket))
	return nil
}

func (e *MinioExporter) Export(ctx context.Context, name, srcPath string) (string, error) {
	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) {
		return "", errMissingName
	}
	file, err := os.Open(srcPath)
	if err != nil {
		return "", fmt.Errorf("open source: %w", err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("stat source: %w", err)
	}

	key := e.objectKey(base)
	uploaded, err := e.client.PutObject(ctx, e.bucket, key, file, info.Size(), minio.PutObjectOptions{
		ContentType: contentTypeFor(base),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	e.logger.Info("exported photo",
		zap.String("bucket", e.bucket),
		zap.String("key", key),
		zap.Int64("size", uploaded.Size),
	)
	return s3Scheme + path.Join(e.bucket, key), nil
}

func (e *MinioExporter) objectKey(base string) string {
	if e.prefix == "" {
		return base
	}
	return path.Join(e.prefix, base)
}

func contentTypeFor(name string) string {
	if contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); contentType != "" {
		return contentType
	}
	return "application/octet-stream"
}

package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/smallbiznis/pixora/internal/config"
	"go.uber.org/zap"
)

type minioStorage struct {
	client *minio.Client
	cfg    config.StorageConfig
	log    *zap.Logger
}

// NewMinioStorage connects to the configured S3-compatible endpoint.
func NewMinioStorage(cfg config.Config, log *zap.Logger) (ObjectStorage, error) {
	client, err := minio.New(cfg.Storage.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Storage.AccessKey, cfg.Storage.SecretKey, ""),
		Secure: cfg.Storage.UseSSL,
		Region: cfg.Storage.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object storage: %w", err)
	}

	return &minioStorage{
		client: client,
		cfg:    cfg.Storage,
		log:    log.Named("storage.minio"),
	}, nil
}

func (s *minioStorage) EnsureBucket(ctx context.Context, bucket string) error {
	err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.cfg.Region})
	if err != nil {
		// Racing creators and pre-provisioned buckets both land here.
		exists, existsErr := s.client.BucketExists(ctx, bucket)
		if existsErr == nil && exists {
			return nil
		}
		return fmt.Errorf("ensure bucket %s: %w", bucket, err)
	}
	s.log.Info("bucket created", zap.String("bucket", bucket))
	return nil
}

func (s *minioStorage) PutObject(ctx context.Context, bucket, path string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, bucket, path, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %s/%s: %w", bucket, path, err)
	}
	return nil
}

func (s *minioStorage) PublicURL(bucket, path string) string {
	if s.cfg.PublicBaseURL != "" {
		return fmt.Sprintf("%s/%s/%s", s.cfg.PublicBaseURL, bucket, path)
	}
	scheme := "http"
	if s.cfg.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, s.cfg.Endpoint, bucket, path)
}

package minio

import (
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/geodex-labs/geodex/internal/config"
)

// NewClient builds the object store client that materializes s3:// data
// source locators. The bucket comes from each locator, so the raw client
// goes out rather than a bucket-scoped wrapper.
func NewClient(cfg config.MinIOConfig) (*minio.Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return mc, nil
}

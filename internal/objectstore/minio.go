// Package objectstore archives uploaded PDFs in object storage so the
// original bytes survive beyond text extraction.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const pdfContentType = "application/pdf"

// Config holds MinIO connection configuration.
type Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	UseSSL          bool
	Region          string
}

// MinIOStore stores original documents in a MinIO bucket.
type MinIOStore struct {
	client *minio.Client
	bucket string
	region string
}

// New creates a MinIO-backed object store.
func New(cfg Config) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &MinIOStore{
		client: client,
		bucket: cfg.BucketName,
		region: cfg.Region,
	}, nil
}

// InitBucket ensures the bucket exists and creates it if necessary.
func (s *MinIOStore) InitBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{
			Region: s.region,
		})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return nil
}

// ArchivePDF stores the original PDF bytes under the document's ID and
// returns the object key.
func (s *MinIOStore) ArchivePDF(ctx context.Context, documentID, filename string, data []byte) (string, error) {
	key := objectKey(documentID, filename)

	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: pdfContentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive pdf: %w", err)
	}

	return key, nil
}

// DeleteDocument removes all archived objects for a document.
func (s *MinIOStore) DeleteDocument(ctx context.Context, documentID string) error {
	prefix := documentID + "/"

	objectCh := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	for obj := range objectCh {
		if obj.Err != nil {
			return fmt.Errorf("failed to list objects: %w", obj.Err)
		}
		if err := s.client.RemoveObject(ctx, s.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("failed to delete object %s: %w", obj.Key, err)
		}
	}

	return nil
}

// Health checks MinIO connectivity.
func (s *MinIOStore) Health(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}

func objectKey(documentID, filename string) string {
	return path.Join(documentID, path.Base(filename))
}

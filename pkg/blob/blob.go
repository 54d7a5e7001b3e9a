// Package blob implements the backup blob store described in spec.md 6: a
// keyed object store reached over the S3-compatible protocol, holding the
// final compressed/encrypted backup payload under
// backups/YYYY/MM/DD/backup_{id}.dat.
package blob

import (
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Store is the blob service contract. Guardian uses Go's idiomatic
// error-returning shape here rather than the bool-returning signatures in
// spec.md 6 (a direct port of the original's Python "-> bool" methods);
// every implementation still maps a miss (Exists, GetSize) to a typed
// zero-value result, only surfacing an error for a transport/protocol
// failure distinct from "not found".
type Store interface {
	Upload(ctx context.Context, localPath, remoteKey string) error
	Download(ctx context.Context, remoteKey, localPath string) error
	Delete(ctx context.Context, remoteKey string) error
	Exists(ctx context.Context, remoteKey string) (bool, error)
	GetSize(ctx context.Context, remoteKey string) (int64, error)
	PresignedURL(ctx context.Context, remoteKey string, ttl time.Duration) (string, error)
}

// MinIOStore implements Store over any S3-compatible endpoint.
type MinIOStore struct {
	client *minio.Client
	bucket string
}

// Config carries the connection details for a MinIOStore.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// NewMinIOStore dials endpoint and ensures the configured bucket exists,
// creating it on first use.
func NewMinIOStore(ctx context.Context, cfg Config) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %q: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %q: %w", cfg.Bucket, err)
		}
	}

	return &MinIOStore{client: client, bucket: cfg.Bucket}, nil
}

// Upload puts the file at localPath under remoteKey.
func (s *MinIOStore) Upload(ctx context.Context, localPath, remoteKey string) error {
	_, err := s.client.FPutObject(ctx, s.bucket, remoteKey, localPath, minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("upload %s to %s: %w", localPath, remoteKey, err)
	}
	return nil
}

// Download writes remoteKey's contents to localPath.
func (s *MinIOStore) Download(ctx context.Context, remoteKey, localPath string) error {
	if err := s.client.FGetObject(ctx, s.bucket, remoteKey, localPath, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("download %s to %s: %w", remoteKey, localPath, err)
	}
	return nil
}

// Delete removes remoteKey. Guardian's retention reaper does not call this
// directly (spec.md 4.5: blob GC is an external collaborator's
// responsibility), but the method is part of the external interface.
func (s *MinIOStore) Delete(ctx context.Context, remoteKey string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, remoteKey, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete %s: %w", remoteKey, err)
	}
	return nil
}

// Exists reports whether remoteKey is present.
func (s *MinIOStore) Exists(ctx context.Context, remoteKey string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, remoteKey, minio.StatObjectOptions{})
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NotFound" {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", remoteKey, err)
	}
	return true, nil
}

// GetSize returns remoteKey's object size in bytes.
func (s *MinIOStore) GetSize(ctx context.Context, remoteKey string) (int64, error) {
	info, err := s.client.StatObject(ctx, s.bucket, remoteKey, minio.StatObjectOptions{})
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NotFound" {
			return 0, nil
		}
		return 0, fmt.Errorf("stat %s: %w", remoteKey, err)
	}
	return info.Size, nil
}

// PresignedURL returns a time-limited GET URL for remoteKey.
func (s *MinIOStore) PresignedURL(ctx context.Context, remoteKey string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, remoteKey, ttl, nil)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", remoteKey, err)
	}
	return u.String(), nil
}

// StorageKey builds the backups/YYYY/MM/DD/backup_{id}.dat key template
// spec.md 6 fixes, so the same id always maps to the same key (the upload
// step's idempotence invariant in spec.md 4.3).
func StorageKey(backupID string, createdAt time.Time) string {
	return fmt.Sprintf("backups/%04d/%02d/%02d/backup_%s.dat",
		createdAt.Year(), createdAt.Month(), createdAt.Day(), backupID)
}

var _ Store = (*MinIOStore)(nil)

package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// Object stored evidence reference
type Object struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// Store evidence object store
type Store interface {
	Put(ctx context.Context, prefix, fileName string, r io.Reader, size int64, contentType string) (*Object, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// MinIOOptions connection settings
type MinIOOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinIOStore bucket-backed store
type MinIOStore struct {
	client *minio.Client
	bucket string
}

// NewMinIOStore connects and makes sure the bucket exists
func NewMinIOStore(ctx context.Context, opts MinIOOptions) (*MinIOStore, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", opts.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", opts.Bucket, err)
		}
	}
	return &MinIOStore{client: client, bucket: opts.Bucket}, nil
}

// objectKey {prefix}/{yyyy}/{mm}/{uuid}{ext}
func objectKey(prefix, fileName string) string {
	now := time.Now()
	ext := strings.ToLower(filepath.Ext(fileName))
	return path.Join(prefix, fmt.Sprintf("%d/%02d", now.Year(), now.Month()), uuid.New().String()+ext)
}

func (s *MinIOStore) Put(ctx context.Context, prefix, fileName string, r io.Reader, size int64, contentType string) (*Object, error) {
	key := objectKey(prefix, fileName)
	info, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", key, err)
	}
	return &Object{
		Key:         key,
		URL:         "/" + s.bucket + "/" + key,
		Size:        info.Size,
		ContentType: contentType,
	}, nil
}

func (s *MinIOStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", key, err)
	}
	return obj, nil
}

// LocalStore disk-backed store under a root directory
type LocalStore struct {
	root string
}

func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root}
}

func (s *LocalStore) Put(_ context.Context, prefix, fileName string, r io.Reader, _ int64, contentType string) (*Object, error) {
	key := objectKey(prefix, fileName)
	full := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	f, err := os.Create(full)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", key, err)
	}
	defer f.Close()
	n, err := io.Copy(f, r)
	if err != nil {
		return nil, fmt.Errorf("write %s: %w", key, err)
	}
	return &Object{Key: key, URL: "/uploads/" + key, Size: n, ContentType: contentType}, nil
}

func (s *LocalStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	clean := filepath.Clean("/" + key)
	return os.Open(filepath.Join(s.root, clean))
}

// New MinIO when an endpoint is configured, otherwise local disk
func New(ctx context.Context, opts MinIOOptions, localDir string, logger *zap.Logger) Store {
	if opts.Endpoint != "" {
		st, err := NewMinIOStore(ctx, opts)
		if err == nil {
			return st
		}
		logger.Warn("MinIO unavailable, storing evidence on local disk", zap.Error(err))
	}
	return NewLocalStore(localDir)
}

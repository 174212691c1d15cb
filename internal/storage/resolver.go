// Package storage turns stored file references into local paths the text
// extractor can read.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrNoObjectStore is returned for s3:// references when no endpoint is configured.
var ErrNoObjectStore = errors.New("object storage is not configured")

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	TempDir   string
}

// Resolver maps a file reference to a local path. Local paths and file://
// URLs are returned as they are; s3://bucket/key objects are downloaded into
// a private temp directory that cleanup removes.
type Resolver struct {
	client  *minio.Client
	tempDir string
	logger  *slog.Logger
}

func NewResolver(cfg Config, logger *slog.Logger) (*Resolver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{tempDir: cfg.TempDir, logger: logger}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return r, nil
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	r.client = client
	return r, nil
}

func (r *Resolver) Resolve(ctx context.Context, ref string) (string, func(), error) {
	noop := func() {}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", noop, errors.New("empty file reference")
	}

	switch {
	case strings.HasPrefix(ref, "s3://"):
		return r.download(ctx, ref)
	case strings.HasPrefix(ref, "file://"):
		u, err := url.Parse(ref)
		if err != nil {
			return "", noop, fmt.Errorf("parse %q: %w", ref, err)
		}
		return r.local(u.Path)
	default:
		return r.local(ref)
	}
}

func (r *Resolver) local(p string) (string, func(), error) {
	st, err := os.Stat(p)
	if err != nil {
		return "", func() {}, fmt.Errorf("stat %s: %w", p, err)
	}
	if st.IsDir() {
		return "", func() {}, fmt.Errorf("%s is a directory", p)
	}
	return p, func() {}, nil
}

func (r *Resolver) download(ctx context.Context, ref string) (string, func(), error) {
	noop := func() {}
	if r.client == nil {
		return "", noop, fmt.Errorf("%s: %w", ref, ErrNoObjectStore)
	}
	bucket, key, err := splitS3(ref)
	if err != nil {
		return "", noop, err
	}

	dir, err := os.MkdirTemp(r.tempDir, "td-obj-*")
	if err != nil {
		return "", noop, fmt.Errorf("create temp dir: %w", err)
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			r.logger.Warn("failed to remove download dir", "dir", dir, "error", err)
		}
	}

	// keep the object's base name so the extension still selects the format
	dst := filepath.Join(dir, path.Base(key))
	if err := r.client.FGetObject(ctx, bucket, key, dst, minio.GetObjectOptions{}); err != nil {
		cleanup()
		return "", noop, fmt.Errorf("get object %s: %w", ref, err)
	}
	r.logger.Debug("downloaded object", "bucket", bucket, "key", key, "path", dst)
	return dst, cleanup, nil
}

func splitS3(ref string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(ref, "s3://")
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid object reference %q, want s3://bucket/key", ref)
	}
	return bucket, key, nil
}

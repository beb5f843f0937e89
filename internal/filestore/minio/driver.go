// Package minio provides a MinIO (S3-compatible) implementation of
// filestore.Store, for sharing saved connections and history between
// machines.
//
// Usage:
//
//	cfg := &filestore.Config{Provider: filestore.ProviderMinIO, Endpoint: "localhost:9000",
//	    AccessKey: "minioadmin", SecretKey: "minioadmin", Bucket: "dbbrowse"}
//	store, err := minio.New(ctx, cfg)
//	if err != nil { ... }
//	defer store.Close()
package minio

import (
	"bytes"
	"context"
	"io"
	"path"
	"strings"

	"github.com/koustreak/dbbrowse/internal/errs"
	"github.com/koustreak/dbbrowse/internal/filestore"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const contentType = "application/json"

// Driver is a MinIO implementation of filestore.Store.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	client *miniogo.Client
	bucket string
	prefix string
}

var _ filestore.Store = (*Driver)(nil)

// New connects to MinIO, verifies the credentials and creates the bucket
// if it does not exist yet.
func New(ctx context.Context, cfg *filestore.Config) (*Driver, error) {
	if cfg.Bucket == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "minio bucket is required")
	}

	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to create minio client", err)
	}

	d := &Driver{client: client, bucket: cfg.Bucket, prefix: normalizePrefix(cfg.Prefix)}

	if err := d.ensureBucket(ctx, cfg.Region); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Driver) ensureBucket(ctx context.Context, region string) error {
	exists, err := d.client.BucketExists(ctx, d.bucket)
	if err != nil {
		return mapError(err, "ping failed")
	}
	if exists {
		return nil
	}
	if err := d.client.MakeBucket(ctx, d.bucket, miniogo.MakeBucketOptions{Region: region}); err != nil {
		return mapError(err, "failed to create bucket "+d.bucket)
	}
	return nil
}

// --- filestore.Store implementation ---

// Ping verifies the bucket is reachable.
func (d *Driver) Ping(ctx context.Context) error {
	if _, err := d.client.BucketExists(ctx, d.bucket); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// Read downloads the whole document.
func (d *Driver) Read(ctx context.Context, name string) ([]byte, error) {
	obj, err := d.client.GetObject(ctx, d.bucket, d.key(name), miniogo.GetObjectOptions{})
	if err != nil {
		return nil, mapError(err, "failed to get "+name)
	}
	defer obj.Close()

	// GetObject is lazy; a missing key surfaces on the first read.
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, mapError(err, "failed to read "+name)
	}
	return data, nil
}

// Write uploads the document in a single PUT, which S3 applies atomically.
func (d *Driver) Write(ctx context.Context, name string, data []byte) error {
	_, err := d.client.PutObject(ctx, d.bucket, d.key(name), bytes.NewReader(data), int64(len(data)),
		miniogo.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return mapError(err, "failed to put "+name)
	}
	return nil
}

// Delete removes the document. S3 treats deleting a missing key as success.
func (d *Driver) Delete(ctx context.Context, name string) error {
	if err := d.client.RemoveObject(ctx, d.bucket, d.key(name), miniogo.RemoveObjectOptions{}); err != nil {
		return mapError(err, "failed to delete "+name)
	}
	return nil
}

// Close is a no-op for MinIO; the SDK client holds no persistent connections.
func (d *Driver) Close() error {
	return nil
}

func (d *Driver) key(name string) string {
	return d.prefix + name
}

// normalizePrefix returns "" or a clean prefix ending in "/".
func normalizePrefix(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	return path.Clean(p) + "/"
}

// Package storage provides the object storage gateway for uploaded PDFs
// and submission media.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const Bucket = "pratyush"

// Client wraps a MinIO-compatible endpoint. Objects are written under
// stable keys so re-uploads overwrite rather than accumulate.
type Client struct {
	mc         *minio.Client
	publicBase string
}

type Config struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	UseSSL     bool
	PublicBase string
}

func New(cfg Config) (*Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}
	base := cfg.PublicBase
	if base == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		base = scheme + "://" + cfg.Endpoint
	}
	return &Client{mc: mc, publicBase: strings.TrimRight(base, "/")}, nil
}

// EnsureBucket creates the bucket if it does not exist yet.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.mc.BucketExists(ctx, Bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := c.mc.MakeBucket(ctx, Bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

// Put stores an object and returns its public URL.
func (c *Client) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	_, err := c.mc.PutObject(ctx, Bucket, key, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return c.URL(key), nil
}

// Remove deletes an object. Missing objects are not an error.
func (c *Client) Remove(ctx context.Context, key string) error {
	if err := c.mc.RemoveObject(ctx, Bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", key, err)
	}
	return nil
}

// URL returns the public URL for an object key.
func (c *Client) URL(key string) string {
	escaped := make([]string, 0, 4)
	for _, part := range strings.Split(key, "/") {
		escaped = append(escaped, url.PathEscape(part))
	}
	return c.publicBase + "/" + Bucket + "/" + strings.Join(escaped, "/")
}

// GlobalIssueKey is the stable key for a monthly issue PDF.
func GlobalIssueKey(year, month int, ext string) string {
	return fmt.Sprintf("global/%d-%02d-newsletter.%s", year, month, ext)
}

// DepartmentIssueKey is the stable key for a department section PDF.
func DepartmentIssueKey(departmentID, issueID, ext string) string {
	return fmt.Sprintf("department/%s/%s.%s", departmentID, issueID, ext)
}

// MediaKey is the key for a submission's attached media file.
func MediaKey(submissionID, ext string) string {
	return fmt.Sprintf("media/%s.%s", submissionID, ext)
}

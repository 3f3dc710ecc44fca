package client

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Storage returns a storage client.
func (c *Client) Storage() *StorageClient {
	return &StorageClient{client: c}
}

// StorageClient handles storage operations.
type StorageClient struct {
	client *Client
}

// From returns a bucket client.
func (s *StorageClient) From(bucket string) *BucketClient {
	return &BucketClient{
		client: s.client,
		bucket: bucket,
	}
}

// BucketClient handles bucket operations.
type BucketClient struct {
	client *Client
	bucket string
}

// UploadOptions tune an upload.
type UploadOptions struct {
	// Upsert overwrites an existing object at the same path.
	Upsert bool
	// CacheControl is sent as the object's max-age in seconds.
	CacheControl string
}

// Upload stores data at path inside the bucket.
func (b *BucketClient) Upload(ctx context.Context, path string, data []byte, contentType string, opts UploadOptions) error {
	reqURL := fmt.Sprintf("%s/storage/v1/object/%s/%s", b.client.baseURL, b.bucket, strings.TrimPrefix(path, "/"))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", contentType)
	if opts.Upsert {
		req.Header.Set("x-upsert", "true")
	}
	cacheControl := opts.CacheControl
	if cacheControl == "" {
		cacheControl = "3600"
	}
	req.Header.Set("Cache-Control", "max-age="+cacheControl)

	resp, err := b.client.do(req)
	if err != nil {
		return err
	}
	return resp.Error()
}

// GetPublicURL returns the public URL for a file in a public bucket.
func (b *BucketClient) GetPublicURL(path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", b.client.baseURL, b.bucket, strings.TrimPrefix(path, "/"))
}

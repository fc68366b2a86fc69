package supabase

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

const storagePath = "storage/v1"

// Uploader stores a blob under bucket/name
type Uploader interface {
	Upload(ctx context.Context, bucket, name, contentType string, body io.Reader) error
}

// Upload stores body in the named bucket
func (c *Client) Upload(ctx context.Context, bucket, name, contentType string, body io.Reader) error {
	if c == nil {
		return nil
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := c.uploader.Upload(ctx, bucket, name, contentType, body); err != nil {
		return fmt.Errorf("failed to upload %s/%s: %w", bucket, name, err)
	}
	return nil
}

// PublicURL returns the public URL of an object in a public bucket
func (c *Client) PublicURL(bucket, name string) string {
	if c == nil {
		return ""
	}
	return c.baseURL.JoinPath(storagePath, "object", "public", bucket, name).String()
}

// restUploader uploads through the storage REST API with the project key
type restUploader struct {
	c *Client
}

func (u *restUploader) Upload(ctx context.Context, bucket, name, contentType string, body io.Reader) error {
	return u.c.do(ctx, request{
		method:      http.MethodPost,
		path:        []string{storagePath, "object", bucket, name},
		body:        body,
		contentType: contentType,
		headers:     map[string]string{"x-upsert": "false"},
	}, nil)
}

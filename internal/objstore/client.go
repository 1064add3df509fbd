// Package objstore uploads rasters to the object storage service and
// builds the transform URLs used when embedding them in documents.
package objstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

// Client talks to an HTTP object storage service (bucket + key PUT with
// public read URLs).
type Client struct {
	baseURL    string
	bucket     string
	authToken  string
	httpClient *http.Client
}

// Config configures the object storage client.
type Config struct {
	// BaseURL is the storage service root, e.g. https://storage.example.com.
	BaseURL string
	// Bucket is the target bucket for generated illustrations.
	Bucket string
	// AuthToken is the service credential sent as a bearer token.
	AuthToken string
	// Timeout bounds a single upload attempt (default 2m).
	Timeout time.Duration
}

// New creates an object storage client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		bucket:     cfg.Bucket,
		authToken:  cfg.AuthToken,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Upload stores data under key and returns the durable public URL.
// Uploads are idempotent overwrites: re-delivering the same job writes
// the same key again.
func (c *Client) Upload(ctx context.Context, key, contentType string, data []byte) (string, error) {
	target := fmt.Sprintf("%s/object/%s/%s", c.baseURL, c.bucket, escapeKey(key))

	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(data))
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("build upload request: %w", err))
			}
			req.Header.Set("Content-Type", contentType)
			if c.authToken != "" {
				req.Header.Set("Authorization", "Bearer "+c.authToken)
			}

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return fmt.Errorf("upload %s: %w", key, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			err = fmt.Errorf("upload %s: status %d: %s", key, resp.StatusCode, string(body))
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return retry.Unrecoverable(err)
			}
			return err
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return "", err
	}
	return c.PublicURL(key), nil
}

// PublicURL returns the durable read URL for a stored key.
func (c *Client) PublicURL(key string) string {
	return fmt.Sprintf("%s/object/public/%s/%s", c.baseURL, c.bucket, escapeKey(key))
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

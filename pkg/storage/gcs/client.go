package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/angelmondragon/fueltax-backend/pkg/config"
	"github.com/angelmondragon/fueltax-backend/pkg/logger"
	blobstore "github.com/angelmondragon/fueltax-backend/pkg/storage"
)

const (
	pingTimeout  = 5 * time.Second
	refScheme    = "gs://"
	maxReadBytes = 64 << 20
)

// Client stores receipt images in a single GCS bucket. References have the
// form gs://<bucket>/<object>.
type Client struct {
	client *storage.Client
	bucket string
	logg   *logger.Logger
}

var _ blobstore.BlobStore = (*Client)(nil)

func NewClient(ctx context.Context, cfg config.GCSConfig, gcp config.GCPConfig, logg *logger.Logger) (*Client, error) {
	bucket := strings.TrimSpace(cfg.BucketName)
	if bucket == "" {
		return nil, errors.New("gcs bucket name is required")
	}

	sc, err := storage.NewClient(ctx, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating gcs client: %w", err)
	}

	client := &Client{client: sc, bucket: bucket, logg: logg}
	if err := client.Ping(ctx); err != nil {
		_ = sc.Close()
		return nil, fmt.Errorf("gcs health check failed: %w", err)
	}

	if logg != nil {
		logg.Info(ctx, "gcs client initialized")
	}
	return client, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	var opts []option.ClientOption
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(gcp.CredentialsJSON)))
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		opts = append(opts, option.WithCredentialsFile(gcp.ApplicationCredentials))
	}
	return opts
}

// Put uploads data under a fresh key inside namespace.
func (c *Client) Put(ctx context.Context, data []byte, mime, namespace string) (string, error) {
	if c == nil || c.client == nil {
		return "", errors.New("gcs client not initialized")
	}
	key, err := blobstore.ObjectKey(namespace, mime)
	if err != nil {
		return "", err
	}
	w := c.client.Bucket(c.bucket).Object(key).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = mime
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("writing object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalizing object %s: %w", key, err)
	}
	return c.reference(key), nil
}

// Get downloads the object behind ref.
func (c *Client) Get(ctx context.Context, ref string) ([]byte, string, error) {
	if c == nil || c.client == nil {
		return nil, "", errors.New("gcs client not initialized")
	}
	bucket, key, err := parseReference(ref)
	if err != nil {
		return nil, "", err
	}
	r, err := c.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, "", blobstore.ErrNotFound
		}
		return nil, "", fmt.Errorf("opening object %s: %w", key, err)
	}
	defer r.Close()

	data, err := io.ReadAll(io.LimitReader(r, maxReadBytes))
	if err != nil {
		return nil, "", fmt.Errorf("reading object %s: %w", key, err)
	}
	return data, r.Attrs.ContentType, nil
}

// Delete removes the object behind ref. Missing objects are not an error.
func (c *Client) Delete(ctx context.Context, ref string) error {
	if c == nil || c.client == nil {
		return errors.New("gcs client not initialized")
	}
	bucket, key, err := parseReference(ref)
	if err != nil {
		return err
	}
	if err := c.client.Bucket(bucket).Object(key).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("deleting object %s: %w", key, err)
	}
	return nil
}

// Ping checks the bucket is reachable with the configured credentials.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("gcs client not initialized")
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if _, err := c.client.Bucket(c.bucket).Attrs(pingCtx); err != nil {
		return fmt.Errorf("bucket %q: %w", c.bucket, err)
	}
	return nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) reference(key string) string {
	return refScheme + c.bucket + "/" + key
}

func parseReference(ref string) (string, string, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(ref), refScheme)
	bucket, key, ok := strings.Cut(trimmed, "/")
	if !ok || !strings.HasPrefix(strings.TrimSpace(ref), refScheme) || bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid gcs reference %q", ref)
	}
	return bucket, key, nil
}

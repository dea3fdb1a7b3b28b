// Package storage defines the blob store used for receipt images.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Get when the reference does not exist.
var ErrNotFound = errors.New("blob not found")

// BlobStore persists opaque bytes under a generated reference.
type BlobStore interface {
	Put(ctx context.Context, data []byte, mime, namespace string) (string, error)
	Get(ctx context.Context, ref string) ([]byte, string, error)
	// Delete is idempotent: deleting a missing reference succeeds.
	Delete(ctx context.Context, ref string) error
	Ping(ctx context.Context) error
}

var extensionsByMime = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"image/heic":      ".heic",
	"image/heif":      ".heif",
	"application/pdf": ".pdf",
}

// ObjectKey builds "<namespace>/<uuid><ext>" for a new blob.
func ObjectKey(namespace, mime string) (string, error) {
	ns := strings.Trim(strings.TrimSpace(namespace), "/")
	if ns == "" {
		return "", fmt.Errorf("blob namespace is required")
	}
	return ns + "/" + uuid.NewString() + extensionsByMime[strings.ToLower(mime)], nil
}

// ReceiptNamespace scopes receipt images per account and receipt.
func ReceiptNamespace(accountID, receiptID uuid.UUID) string {
	return fmt.Sprintf("receipts/%s/%s", accountID, receiptID)
}

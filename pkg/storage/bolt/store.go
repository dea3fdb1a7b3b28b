// Package bolt keeps receipt images in a local bbolt file for development
// and tests.
package bolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	blobstore "github.com/angelmondragon/fueltax-backend/pkg/storage"
)

const (
	blobsBucket = "blobs"
	metaBucket  = "blob_meta"
	refScheme   = "bolt://"
)

type blobMeta struct {
	Mime      string    `json:"mime"`
	Size      int       `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Store implements storage.BlobStore on a single bbolt database.
type Store struct {
	db *bbolt.DB
}

var _ blobstore.BlobStore = (*Store)(nil)

// Open creates or opens the bolt file at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("bolt path is required")
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(blobsBucket)); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(metaBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Put(ctx context.Context, data []byte, mime, namespace string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key, err := blobstore.ObjectKey(namespace, mime)
	if err != nil {
		return "", err
	}
	meta, err := json.Marshal(blobMeta{Mime: mime, Size: len(data), CreatedAt: time.Now().UTC()})
	if err != nil {
		return "", err
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket([]byte(blobsBucket)).Put([]byte(key), data); err != nil {
			return err
		}
		return tx.Bucket([]byte(metaBucket)).Put([]byte(key), meta)
	})
	if err != nil {
		return "", fmt.Errorf("storing blob %s: %w", key, err)
	}
	return refScheme + key, nil
}

func (s *Store) Get(ctx context.Context, ref string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	key, err := parseReference(ref)
	if err != nil {
		return nil, "", err
	}
	var (
		data []byte
		meta blobMeta
	)
	err = s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket([]byte(blobsBucket)).Get([]byte(key))
		if raw == nil {
			return blobstore.ErrNotFound
		}
		// bolt memory is only valid inside the transaction.
		data = append([]byte(nil), raw...)
		if m := tx.Bucket([]byte(metaBucket)).Get([]byte(key)); m != nil {
			return json.Unmarshal(m, &meta)
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return data, meta.Mime, nil
}

func (s *Store) Delete(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := parseReference(ref)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket([]byte(blobsBucket)).Delete([]byte(key)); err != nil {
			return err
		}
		return tx.Bucket([]byte(metaBucket)).Delete([]byte(key))
	})
}

func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("bolt store not initialized")
	}
	return s.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(blobsBucket)) == nil {
			return errors.New("blobs bucket missing")
		}
		return nil
	})
}

// Count returns the number of stored blobs.
func (s *Store) Count() (int, error) {
	n := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket([]byte(blobsBucket)).Stats().KeyN
		return nil
	})
	return n, err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func parseReference(ref string) (string, error) {
	if !strings.HasPrefix(ref, refScheme) || len(ref) == len(refScheme) {
		return "", fmt.Errorf("invalid bolt reference %q", ref)
	}
	return strings.TrimPrefix(ref, refScheme), nil
}

package service

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// ObjectStore defines the subset of Cloud Storage functionality the pipeline
// requires. It is satisfied by the real client via NewObjectStoreAdapter and
// can be mocked in tests.
type ObjectStore interface {
	// Write stores an object in a single non-resumable request.
	Write(ctx context.Context, bucket, name string, data []byte, contentType string, metadata map[string]string) error

	// Read returns the full content of an object.
	Read(ctx context.Context, bucket, name string) ([]byte, error)
}

// NewObjectStoreAdapter wraps a storage.Client so it satisfies ObjectStore.
func NewObjectStoreAdapter(c *storage.Client) ObjectStore {
	if c == nil {
		return nil
	}
	return &objectStoreAdapter{client: c}
}

type objectStoreAdapter struct{ client *storage.Client }

func (s *objectStoreAdapter) Write(ctx context.Context, bucket, name string, data []byte, contentType string, metadata map[string]string) error {
	w := s.client.Bucket(bucket).Object(name).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = metadata
	// Metric records are small single-shot payloads; a zero chunk size
	// uploads in one request with no resumable-session state.
	w.ChunkSize = 0

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("writing object %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing object %s: %w", name, err)
	}
	return nil
}

func (s *objectStoreAdapter) Read(ctx context.Context, bucket, name string) ([]byte, error) {
	r, err := s.client.Bucket(bucket).Object(name).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening object %s: %w", name, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading object %s: %w", name, err)
	}
	return data, nil
}

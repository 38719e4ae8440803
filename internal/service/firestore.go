package service

import (
	"context"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DocumentStore defines the subset of Firestore functionality used by the
// analyzer. It is satisfied by the real client via NewDocumentStoreAdapter
// and can be mocked in tests.
type DocumentStore interface {
	// Create writes a new document, failing with a gRPC AlreadyExists status
	// if a document with the given id is already present.
	Create(ctx context.Context, collection, id string, data interface{}) error
}

// NewDocumentStoreAdapter wraps a firestore.Client so it satisfies
// DocumentStore.
func NewDocumentStoreAdapter(c *firestore.Client) DocumentStore {
	if c == nil {
		return nil
	}
	return &documentStoreAdapter{client: c}
}

type documentStoreAdapter struct{ client *firestore.Client }

func (s *documentStoreAdapter) Create(ctx context.Context, collection, id string, data interface{}) error {
	_, err := s.client.Collection(collection).Doc(id).Create(ctx, data)
	return err
}

// isAlreadyExists reports whether a document create failed because the
// document was written by an earlier delivery of the same event.
func isAlreadyExists(err error) bool {
	return status.Code(err) == codes.AlreadyExists
}

package community

import (
	"context"
	"io"
	"strings"
)

// Entity is a uniquely identified document. Implementations use pointer
// receivers so repositories can assign an id on insert.
type Entity interface {
	GetID() string
	SetID(id string)
}

// Filter selects documents by top-level field equality. Keys are stored
// field names; "id" addresses the identifier.
type Filter map[string]any

// Validate rejects keys no backend can interpret portably.
func (f Filter) Validate() error {
	for k := range f {
		if k == "" || strings.HasPrefix(k, "$") {
			return ErrInvalidQuery
		}
	}
	return nil
}

// Patch is a set of top-level field assignments applied by UpdateOne.
type Patch map[string]any

// Validate rejects empty keys, operators and identifier changes.
func (p Patch) Validate() error {
	for k := range p {
		if k == "" || strings.HasPrefix(k, "$") || k == "id" || k == "_id" {
			return ErrInvalidQuery
		}
	}
	return nil
}

// DocumentRepository is typed access to one collection.
//
// Absence is reported through the boolean result, never as an error.
// FindMany ordering is backend specific and not part of this contract.
// There is no concurrency control: the last UpdateOne wins.
type DocumentRepository[T Entity] interface {
	FindOneByID(ctx context.Context, id string) (T, bool, error)
	FindMany(ctx context.Context, filter Filter) ([]T, error)
	InsertOne(ctx context.Context, doc T) (T, error)
	UpdateOne(ctx context.Context, id string, patch Patch) (T, bool, error)
	DeleteOne(ctx context.Context, id string) (bool, error)
}

// ObjectRepository defines binary object access plus URL grant issuance.
type ObjectRepository interface {
	// GetObjectStream opens the object at key. The caller must Close it.
	GetObjectStream(ctx context.Context, key string) (*ObjectStream, error)

	// HeadObject returns existence and metadata without the body
	HeadObject(ctx context.Context, key string) (*ObjectMeta, bool, error)

	// GenerateSignedGetURL returns a bearer URL for downloading key
	GenerateSignedGetURL(ctx context.Context, req SignedGetURLRequest) (*SignedURL, error)

	// GenerateSignedPutURL returns a bearer URL for one upload of key with
	// the declared content type
	GenerateSignedPutURL(ctx context.Context, req SignedPutURLRequest) (*SignedURL, error)

	// PutObject uploads content directly
	PutObject(ctx context.Context, key string, body io.Reader, contentType string, metadata map[string]string) error
}

// Validator is implemented by entities with invariants that span fields.
type Validator interface {
	Validate() error
}

// ValidateEntity runs doc's Validate when it has one. Admin writes and every
// repository's UpdateOne merge call it before anything is stored.
func ValidateEntity(doc any) error {
	if v, ok := doc.(Validator); ok {
		return v.Validate()
	}
	return nil
}

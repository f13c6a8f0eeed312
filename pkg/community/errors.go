package community

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrNotFound indicates an entity or object the caller asked for is absent
	ErrNotFound = errors.New("not found")

	// ErrObjectNotFound indicates no object exists at a key in the object store
	ErrObjectNotFound = errors.New("object not found")

	// ErrInvalidInput indicates missing or malformed request parameters
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidQuery indicates a filter or patch the document store cannot accept
	ErrInvalidQuery = errors.New("invalid query")

	// ErrInvalidExpiry indicates a non-positive signed URL lifetime
	ErrInvalidExpiry = errors.New("invalid expiry")

	// ErrStoreUnavailable indicates the document or object store could not be reached
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrAccessDenied indicates the configured credentials cannot access the object
	ErrAccessDenied = errors.New("access denied")

	// ErrCredentialsMissing indicates signing credentials are not configured
	ErrCredentialsMissing = errors.New("credentials missing")

	// ErrDuplicateID indicates an insert collided with an existing identifier
	ErrDuplicateID = errors.New("duplicate id")

	// ErrObjectTooLarge indicates an upload body exceeded the configured limit
	ErrObjectTooLarge = errors.New("object too large")

	// ErrDuplicateMedia indicates a media_id is already used within a content
	ErrDuplicateMedia = errors.New("duplicate media id")
)

// NotFoundError is returned by the use cases when a lookup step comes back
// empty. Message is safe to show to end users. Err carries the underlying
// reason (for example ErrObjectNotFound) when there is one.
type NotFoundError struct {
	Resource string
	ID       string
	Message  string
	Err      error
}

func (e *NotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s not found: %v", e.Resource, e.ID, e.Err)
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// StorageError represents an error related to object store operations
type StorageError struct {
	Backend string
	Key     string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s on backend %s: %v", e.Op, e.Key, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// DocumentError represents an error related to document store operations
type DocumentError struct {
	Collection string
	ID         string
	Op         string
	Err        error
}

func (e *DocumentError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("document operation %s failed on %s: %v", e.Op, e.Collection, e.Err)
	}
	return fmt.Sprintf("document operation %s failed for %s on %s: %v", e.Op, e.ID, e.Collection, e.Err)
}

func (e *DocumentError) Unwrap() error {
	return e.Err
}

// IsInfrastructure reports whether err is a store fault rather than a
// caller mistake or an absent record.
func IsInfrastructure(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrAccessDenied) ||
		errors.Is(err, ErrCredentialsMissing)
}

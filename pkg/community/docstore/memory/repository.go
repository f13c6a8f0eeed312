package memory

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/tendant/community-admin/pkg/community"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// Repository implements community.DocumentRepository in memory.
// Documents are kept BSON-encoded so every read and write works on a copy;
// FindMany returns insertion order.
type Repository[T community.Entity] struct {
	mu         sync.RWMutex
	collection string
	order      []string
	docs       map[string]bson.Raw
}

// New creates a new in-memory repository for one collection
func New[T community.Entity](collection string) *Repository[T] {
	return &Repository[T]{
		collection: collection,
		docs:       make(map[string]bson.Raw),
	}
}

func (r *Repository[T]) FindOneByID(ctx context.Context, id string) (T, bool, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, false, r.wrap("find_one", id, err)
	}

	r.mu.RLock()
	raw, exists := r.docs[id]
	r.mu.RUnlock()
	if !exists {
		return zero, false, nil
	}

	doc, err := decode[T](raw)
	if err != nil {
		return zero, false, r.wrap("find_one", id, err)
	}
	return doc, true, nil
}

func (r *Repository[T]) FindMany(ctx context.Context, filter community.Filter) ([]T, error) {
	if err := filter.Validate(); err != nil {
		return nil, r.wrap("find_many", "", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, r.wrap("find_many", "", err)
	}

	want, err := encodeFilter(filter)
	if err != nil {
		return nil, r.wrap("find_many", "", fmt.Errorf("%w: %v", community.ErrInvalidQuery, err))
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := []T{}
	for _, id := range r.order {
		raw := r.docs[id]
		if !matches(raw, want) {
			continue
		}
		doc, err := decode[T](raw)
		if err != nil {
			return nil, r.wrap("find_many", id, err)
		}
		result = append(result, doc)
	}
	return result, nil
}

func (r *Repository[T]) InsertOne(ctx context.Context, doc T) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, r.wrap("insert_one", doc.GetID(), err)
	}
	if doc.GetID() == "" {
		doc.SetID(uuid.NewString())
	}

	raw, err := bson.Marshal(doc)
	if err != nil {
		return zero, r.wrap("insert_one", doc.GetID(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := doc.GetID()
	if _, exists := r.docs[id]; exists {
		return zero, r.wrap("insert_one", id, community.ErrDuplicateID)
	}
	r.docs[id] = raw
	r.order = append(r.order, id)

	return decode[T](raw)
}

func (r *Repository[T]) UpdateOne(ctx context.Context, id string, patch community.Patch) (T, bool, error) {
	var zero T
	if err := patch.Validate(); err != nil {
		return zero, false, r.wrap("update_one", id, err)
	}
	if err := ctx.Err(); err != nil {
		return zero, false, r.wrap("update_one", id, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	raw, exists := r.docs[id]
	if !exists {
		return zero, false, nil
	}

	var fields bson.M
	if err := bson.Unmarshal(raw, &fields); err != nil {
		return zero, false, r.wrap("update_one", id, err)
	}
	for k, v := range patch {
		fields[k] = v
	}

	merged, err := bson.Marshal(fields)
	if err != nil {
		return zero, false, r.wrap("update_one", id, fmt.Errorf("%w: %v", community.ErrInvalidQuery, err))
	}
	doc, err := decode[T](merged)
	if err != nil {
		return zero, false, r.wrap("update_one", id, fmt.Errorf("%w: %v", community.ErrInvalidQuery, err))
	}
	if err := community.ValidateEntity(doc); err != nil {
		return zero, false, r.wrap("update_one", id, err)
	}
	// Re-encode through T so unknown fields are dropped.
	canonical, err := bson.Marshal(doc)
	if err != nil {
		return zero, false, r.wrap("update_one", id, err)
	}
	r.docs[id] = canonical

	return doc, true, nil
}

func (r *Repository[T]) DeleteOne(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, r.wrap("delete_one", id, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.docs[id]; !exists {
		return false, nil
	}
	delete(r.docs, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true, nil
}

func (r *Repository[T]) wrap(op, id string, err error) error {
	return &community.DocumentError{Collection: r.collection, ID: id, Op: op, Err: err}
}

func decode[T community.Entity](raw bson.Raw) (T, error) {
	var doc T
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return doc, err
	}
	return doc, nil
}

func encodeFilter(filter community.Filter) (bson.Raw, error) {
	translated := bson.M{}
	for k, v := range filter {
		if k == "id" {
			k = "_id"
		}
		translated[k] = v
	}
	return bson.Marshal(translated)
}

func matches(doc, want bson.Raw) bool {
	elems, err := want.Elements()
	if err != nil {
		return false
	}
	for _, elem := range elems {
		got, err := doc.LookupErr(elem.Key())
		if err != nil {
			return false
		}
		if !equalValues(got, elem.Value()) {
			return false
		}
	}
	return true
}

func equalValues(a, b bson.RawValue) bool {
	if x, ok := numeric(a); ok {
		if y, ok := numeric(b); ok {
			return x == y
		}
		return false
	}
	return a.Type == b.Type && bytes.Equal(a.Value, b.Value)
}

func numeric(v bson.RawValue) (float64, bool) {
	switch v.Type {
	case bsontype.Double:
		return v.Double(), true
	case bsontype.Int32:
		return float64(v.Int32()), true
	case bsontype.Int64:
		return float64(v.Int64()), true
	}
	return 0, false
}

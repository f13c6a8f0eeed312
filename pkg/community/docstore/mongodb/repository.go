package mongodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tendant/community-admin/pkg/community"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Repository implements community.DocumentRepository over one MongoDB
// collection. FindMany ordering is whatever the server returns.
type Repository[T community.Entity] struct {
	coll *mongo.Collection
}

// New creates a repository bound to db.collection
func New[T community.Entity](db *mongo.Database, collection string) *Repository[T] {
	return &Repository[T]{coll: db.Collection(collection)}
}

func (r *Repository[T]) FindOneByID(ctx context.Context, id string) (T, bool, error) {
	var doc T
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		var zero T
		return zero, false, nil
	}
	if err != nil {
		return doc, false, r.handleError("find_one", id, err)
	}
	return doc, true, nil
}

func (r *Repository[T]) FindMany(ctx context.Context, filter community.Filter) ([]T, error) {
	if err := filter.Validate(); err != nil {
		return nil, r.handleError("find_many", "", err)
	}

	cursor, err := r.coll.Find(ctx, translateFilter(filter))
	if err != nil {
		return nil, r.handleError("find_many", "", err)
	}
	defer cursor.Close(ctx)

	result := []T{}
	if err := cursor.All(ctx, &result); err != nil {
		return nil, r.handleError("find_many", "", err)
	}
	return result, nil
}

func (r *Repository[T]) InsertOne(ctx context.Context, doc T) (T, error) {
	if doc.GetID() == "" {
		doc.SetID(uuid.NewString())
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		var zero T
		return zero, r.handleError("insert_one", doc.GetID(), err)
	}
	return doc, nil
}

func (r *Repository[T]) UpdateOne(ctx context.Context, id string, patch community.Patch) (T, bool, error) {
	var zero T
	if err := patch.Validate(); err != nil {
		return zero, false, r.handleError("update_one", id, err)
	}

	var stored bson.M
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&stored)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, r.handleError("update_one", id, err)
	}

	doc, update, err := mergePatch[T](stored, patch)
	if err != nil {
		return zero, false, r.handleError("update_one", id, err)
	}
	if len(update) == 0 {
		return doc, true, nil
	}

	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return zero, false, r.handleError("update_one", id, err)
	}
	if res.MatchedCount == 0 {
		return zero, false, nil
	}
	return doc, true, nil
}

// mergePatch overlays patch on a stored document and decodes the result
// into T before anything is written. The returned update sets the typed
// values of the patched keys and unsets those the entity encoding omits.
func mergePatch[T community.Entity](stored bson.M, patch community.Patch) (T, bson.M, error) {
	var zero T
	for k, v := range patch {
		stored[k] = v
	}

	merged, err := bson.Marshal(stored)
	if err != nil {
		return zero, nil, fmt.Errorf("%w: %v", community.ErrInvalidQuery, err)
	}
	var doc T
	if err := bson.Unmarshal(merged, &doc); err != nil {
		return zero, nil, fmt.Errorf("%w: %v", community.ErrInvalidQuery, err)
	}
	if err := community.ValidateEntity(doc); err != nil {
		return zero, nil, err
	}

	canonical, err := bson.Marshal(doc)
	if err != nil {
		return zero, nil, err
	}
	var typed bson.M
	if err := bson.Unmarshal(canonical, &typed); err != nil {
		return zero, nil, err
	}

	set, unset := bson.M{}, bson.M{}
	for k := range patch {
		if v, ok := typed[k]; ok {
			set[k] = v
		} else {
			unset[k] = ""
		}
	}

	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	return doc, update, nil
}

func (r *Repository[T]) DeleteOne(ctx context.Context, id string) (bool, error) {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, r.handleError("delete_one", id, err)
	}
	return res.DeletedCount > 0, nil
}

// handleError maps driver errors onto the community error taxonomy
func (r *Repository[T]) handleError(op, id string, err error) error {
	wrapped := err
	var cmdErr mongo.CommandError
	switch {
	case errors.Is(err, community.ErrInvalidQuery), errors.Is(err, community.ErrDuplicateMedia):
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
	case mongo.IsDuplicateKeyError(err):
		wrapped = fmt.Errorf("%w: %v", community.ErrDuplicateID, err)
	case errors.As(err, &cmdErr) && (cmdErr.Code == 2 || cmdErr.Code == 9):
		// BadValue, FailedToParse
		wrapped = fmt.Errorf("%w: %v", community.ErrInvalidQuery, err)
	default:
		wrapped = fmt.Errorf("%w: %v", community.ErrStoreUnavailable, err)
	}
	return &community.DocumentError{Collection: r.coll.Name(), ID: id, Op: op, Err: wrapped}
}

// translateFilter maps the portable "id" key onto "_id"
func translateFilter(filter community.Filter) bson.M {
	out := bson.M{}
	for k, v := range filter {
		if k == "id" {
			k = "_id"
		}
		out[k] = v
	}
	return out
}

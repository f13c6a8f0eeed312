package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/tendant/community-admin/pkg/community"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Connect dials uri and verifies the primary is reachable. The client is
// meant to be shared for the life of the process.
func Connect(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, error) {
	opts := options.Client().ApplyURI(uri)
	if timeout > 0 {
		opts.SetConnectTimeout(timeout).SetServerSelectionTimeout(timeout)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: connect mongo: %v", community.ErrStoreUnavailable, err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("%w: ping mongo: %v", community.ErrStoreUnavailable, err)
	}
	return client, nil
}

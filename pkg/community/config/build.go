package config

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/community-admin/pkg/community"
	docmemory "github.com/tendant/community-admin/pkg/community/docstore/memory"
	"github.com/tendant/community-admin/pkg/community/docstore/mongodb"
	"github.com/tendant/community-admin/pkg/community/docstore/postgres"
	objmemory "github.com/tendant/community-admin/pkg/community/objectstore/memory"
	"github.com/tendant/community-admin/pkg/community/objectstore/minio"
	"github.com/tendant/community-admin/pkg/community/objectstore/s3"
)

// Collection names, shared by every document store
const (
	CollectionArtifacts   = "artifacts"
	CollectionContents    = "contents"
	CollectionCommunities = "communities"
	CollectionMembers     = "members"
	CollectionPromos      = "promos"
)

// Stores holds one repository per collection plus the shutdown hook of the
// client behind them.
type Stores struct {
	Artifacts   community.DocumentRepository[*community.Artifact]
	Contents    community.DocumentRepository[*community.Content]
	Communities community.DocumentRepository[*community.Community]
	Members     community.DocumentRepository[*community.Member]
	Promos      community.DocumentRepository[*community.Promo]

	close func(context.Context) error
}

// Close releases the shared database client
func (s *Stores) Close(ctx context.Context) error {
	if s == nil || s.close == nil {
		return nil
	}
	return s.close(ctx)
}

// OpenStores connects to the configured document store
func (c *Config) OpenStores(ctx context.Context) (*Stores, error) {
	switch c.DocStore.Type {
	case DocStoreMemory:
		return &Stores{
			Artifacts:   docmemory.New[*community.Artifact](CollectionArtifacts),
			Contents:    docmemory.New[*community.Content](CollectionContents),
			Communities: docmemory.New[*community.Community](CollectionCommunities),
			Members:     docmemory.New[*community.Member](CollectionMembers),
			Promos:      docmemory.New[*community.Promo](CollectionPromos),
		}, nil

	case DocStoreMongo:
		ctx, cancel := context.WithTimeout(ctx, c.connectTimeout())
		defer cancel()

		client, err := mongodb.Connect(ctx, c.DocStore.MongoURI, c.connectTimeout())
		if err != nil {
			return nil, err
		}
		db := client.Database(c.DocStore.MongoDatabase)
		return &Stores{
			Artifacts:   mongodb.New[*community.Artifact](db, CollectionArtifacts),
			Contents:    mongodb.New[*community.Content](db, CollectionContents),
			Communities: mongodb.New[*community.Community](db, CollectionCommunities),
			Members:     mongodb.New[*community.Member](db, CollectionMembers),
			Promos:      mongodb.New[*community.Promo](db, CollectionPromos),
			close:       client.Disconnect,
		}, nil

	case DocStorePostgres:
		pool, err := c.newPool(ctx)
		if err != nil {
			return nil, err
		}
		for _, table := range []string{CollectionArtifacts, CollectionContents, CollectionCommunities, CollectionMembers, CollectionPromos} {
			if err := postgres.EnsureTable(ctx, pool, table); err != nil {
				pool.Close()
				return nil, err
			}
		}
		return &Stores{
			Artifacts:   postgres.New[*community.Artifact](pool, CollectionArtifacts),
			Contents:    postgres.New[*community.Content](pool, CollectionContents),
			Communities: postgres.New[*community.Community](pool, CollectionCommunities),
			Members:     postgres.New[*community.Member](pool, CollectionMembers),
			Promos:      postgres.New[*community.Promo](pool, CollectionPromos),
			close: func(context.Context) error {
				pool.Close()
				return nil
			},
		}, nil

	default:
		return nil, fmt.Errorf("unsupported docstore type: %s", c.DocStore.Type)
	}
}

func (c *Config) newPool(ctx context.Context) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, c.DocStore.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create connection pool: %v", community.ErrStoreUnavailable, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, c.connectTimeout())
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: failed to ping database: %v", community.ErrStoreUnavailable, err)
	}
	return pool, nil
}

func (c *Config) connectTimeout() time.Duration {
	if c.DocStore.ConnectTimeout <= 0 {
		return 10 * time.Second
	}
	return c.DocStore.ConnectTimeout
}

// LocalObjectsPath is where the memory backend's signed URL endpoints are
// expected to be mounted.
const LocalObjectsPath = "/objects"

// BuildObjectRepository creates the configured object store. For the memory
// backend the result is also a presigned.Store and validator.
func (c *Config) BuildObjectRepository(ctx context.Context) (community.ObjectRepository, error) {
	o := c.ObjectStore
	switch o.Type {
	case ObjectStoreMemory:
		return objmemory.New(objmemory.Config{
			Bucket:              o.Bucket,
			BaseURL:             strings.TrimRight(c.PublicBaseURL, "/") + LocalObjectsPath,
			SecretKey:           o.SigningSecret,
			DefaultPutExpirySec: o.DefaultPutExpirySec,
			DefaultGetExpirySec: o.DefaultGetExpirySec,
			MaxObjectBytes:      o.MaxUploadBytes,
		}), nil

	case ObjectStoreS3:
		backend, err := s3.New(s3.Config{
			Region:                 o.Region,
			Bucket:                 o.Bucket,
			AccessKeyID:            o.AccessKeyID,
			SecretAccessKey:        o.SecretAccessKey,
			Endpoint:               o.Endpoint,
			UsePathStyle:           o.UsePathStyle,
			DefaultPutExpirySec:    o.DefaultPutExpirySec,
			DefaultGetExpirySec:    o.DefaultGetExpirySec,
			EnableSSE:              o.EnableSSE,
			SSEAlgorithm:           o.SSEAlgorithm,
			SSEKMSKeyID:            o.SSEKMSKeyID,
			CreateBucketIfNotExist: o.CreateBucket,
		})
		if err != nil {
			return nil, err
		}
		return backend, nil

	case ObjectStoreMinio:
		backend, err := minio.New(ctx, minio.Config{
			Endpoint:               o.Endpoint,
			AccessKeyID:            o.AccessKeyID,
			SecretAccessKey:        o.SecretAccessKey,
			UseSSL:                 o.UseSSL,
			Bucket:                 o.Bucket,
			Region:                 o.Region,
			DefaultPutExpirySec:    o.DefaultPutExpirySec,
			DefaultGetExpirySec:    o.DefaultGetExpirySec,
			CreateBucketIfNotExist: o.CreateBucket,
		})
		if err != nil {
			return nil, err
		}
		return backend, nil

	default:
		return nil, fmt.Errorf("unsupported objectstore type: %s", o.Type)
	}
}

// BuildService wires the use cases over already opened stores
func BuildService(stores *Stores, objects community.ObjectRepository, logger *slog.Logger) (community.Service, error) {
	return community.New(
		community.WithArtifacts(stores.Artifacts),
		community.WithContents(stores.Contents),
		community.WithObjectStore(objects),
		community.WithLogger(logger),
	)
}

// Package mongostore runs compiled search filters against MongoDB, one
// collection per resource type.
package mongostore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/ehr/fhirsearch/internal/platform/filter"
	"github.com/ehr/fhirsearch/pkg/pagination"
)

// Connect opens a client and pings the primary within timeout.
func Connect(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetConnectTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// Index is a collection index reduced to its name and key fields.
type Index struct {
	Name string
	Keys []string
}

// Store searches resource collections.
type Store struct {
	db     *mongo.Database
	logger zerolog.Logger
}

func New(db *mongo.Database, logger zerolog.Logger) *Store {
	return &Store{db: db, logger: logger.With().Str("component", "mongostore").Logger()}
}

// Indexes lists the indexes of the resource type's collection.
func (s *Store) Indexes(ctx context.Context, resourceType string) ([]Index, error) {
	cur, err := s.db.Collection(resourceType).Indexes().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list indexes on %s: %w", resourceType, err)
	}
	var specs []struct {
		Name string `bson:"name"`
		Key  bson.D `bson:"key"`
	}
	if err := cur.All(ctx, &specs); err != nil {
		return nil, fmt.Errorf("decode indexes on %s: %w", resourceType, err)
	}

	out := make([]Index, 0, len(specs))
	for _, spec := range specs {
		idx := Index{Name: spec.Name, Keys: make([]string, 0, len(spec.Key))}
		for _, k := range spec.Key {
			idx.Keys = append(idx.Keys, k.Key)
		}
		out = append(out, idx)
	}
	return out, nil
}

// PickIndex chooses the index whose key fields are all hinted and that
// covers the most hints. Ties go to the lexicographically smallest name.
func PickIndex(indexes []Index, hints *filter.HintSet) (string, bool) {
	sorted := append([]Index(nil), indexes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	best, bestKeys := "", 0
	for _, idx := range sorted {
		if len(idx.Keys) == 0 || len(idx.Keys) <= bestKeys {
			continue
		}
		covered := true
		for _, k := range idx.Keys {
			if !hints.Has(k) {
				covered = false
				break
			}
		}
		if covered {
			best, bestKeys = idx.Name, len(idx.Keys)
		}
	}
	return best, best != ""
}

// Search finds one page of resources matching expr and counts all matches.
// The hint set picks an index; a failure to list indexes only drops the
// hint.
func (s *Store) Search(ctx context.Context, resourceType string, expr filter.Expr, hints *filter.HintSet, page pagination.Params) ([]bson.M, int64, error) {
	coll := s.db.Collection(resourceType)
	doc := filter.Document(expr)

	findOpts := options.Find().
		SetSkip(page.Skip()).
		SetLimit(page.Limit64()).
		SetProjection(bson.D{{Key: "_id", Value: 0}})
	countOpts := options.Count()

	indexes, err := s.Indexes(ctx, resourceType)
	if err != nil {
		s.logger.Warn().Err(err).Str("resource_type", resourceType).Msg("index listing failed, searching without hint")
	} else if name, ok := PickIndex(indexes, hints); ok {
		findOpts.SetHint(name)
		countOpts.SetHint(name)
	}

	cur, err := coll.Find(ctx, doc, findOpts)
	if err != nil {
		return nil, 0, fmt.Errorf("find %s: %w", resourceType, err)
	}
	results := make([]bson.M, 0, page.Limit)
	if err := cur.All(ctx, &results); err != nil {
		return nil, 0, fmt.Errorf("decode %s: %w", resourceType, err)
	}

	total, err := coll.CountDocuments(ctx, doc, countOpts)
	if err != nil {
		return nil, 0, fmt.Errorf("count %s: %w", resourceType, err)
	}

	s.logger.Debug().
		Str("resource_type", resourceType).
		Stringer("filter", expr).
		Int("returned", len(results)).
		Int64("total", total).
		Msg("search executed")
	return results, total, nil
}

// Health pings the server.
func (s *Store) Health(ctx context.Context) error {
	return s.db.Client().Ping(ctx, readpref.Primary())
}

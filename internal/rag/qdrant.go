package rag

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// Payload keys written with every Qdrant point.
const (
	payloadText   = "text"
	payloadSource = "source"
	payloadPage   = "page"
)

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimension new collections are created with, including
	// the one Rebuild recreates. An existing collection keeps its own.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// qdrantAPI is the part of *qdrant.Client the index uses.
type qdrantAPI interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	GetCollectionInfo(ctx context.Context, collectionName string) (*qdrant.CollectionInfo, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	DeleteCollection(ctx context.Context, collectionName string) error
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Count(ctx context.Context, request *qdrant.CountPoints) (uint64, error)
	Close() error
}

// QdrantIndex implements VectorIndex backed by a Qdrant collection using
// cosine distance.
type QdrantIndex struct {
	// client issues the collection and point RPCs.
	client qdrantAPI

	// conn is the concrete client behind client, exposed for health probes.
	conn *qdrant.Client

	// cfg holds the resolved configuration for this index.
	cfg *QdrantConfig

	// dim is the vector size of the live collection. Rebuild resets it to
	// cfg.VectorSize.
	dim uint64
}

// NewQdrantIndex connects to Qdrant and makes sure the target collection
// exists with the configured vector size.
func NewQdrantIndex(ctx context.Context, cfg *QdrantConfig) (*QdrantIndex, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = "docs"
	}
	if cfg.VectorSize == 0 {
		return nil, fmt.Errorf("qdrant: vector size must be set to create collection %q", cfg.Collection)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	idx, err := openQdrantIndex(ctx, client, cfg)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	idx.conn = client
	return idx, nil
}

// openQdrantIndex binds an index to api and makes sure the collection exists.
func openQdrantIndex(ctx context.Context, api qdrantAPI, cfg *QdrantConfig) (*QdrantIndex, error) {
	idx := &QdrantIndex{client: api, cfg: cfg}
	if err := idx.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

// ensureCollection creates the collection if it does not already exist and
// records the dimension of the live one.
func (q *QdrantIndex) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if !exists {
		return q.createCollection(ctx)
	}
	dim, err := q.Dimension(ctx)
	if err != nil {
		return err
	}
	if dim == 0 {
		return fmt.Errorf("qdrant: collection %q has no single unnamed vector", q.cfg.Collection)
	}
	q.dim = uint64(dim)
	return nil
}

// createCollection creates an empty cosine-distance collection of
// cfg.VectorSize dimensions.
func (q *QdrantIndex) createCollection(ctx context.Context) error {
	err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     q.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", q.cfg.Collection, err)
	}
	q.dim = q.cfg.VectorSize
	return nil
}

// Insert upserts records as new points. Record IDs must be UUIDs.
func (q *QdrantIndex) Insert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, r := range records {
		if uint64(len(r.Vector)) != q.dim {
			return fmt.Errorf("%w: record %s has %d dimensions, collection %q has %d",
				ErrDimensionMismatch, r.ID, len(r.Vector), q.cfg.Collection, q.dim)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(r.ID),
			Vectors: qdrant.NewVectors(r.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadText:   r.Text,
				payloadSource: r.Metadata.Source,
				payloadPage:   int64(r.Metadata.Page),
			}),
		})
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.cfg.Collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}
	return nil
}

// Query performs a cosine similarity search and returns the top-k results.
// Qdrant scores are similarities; they are converted to distances.
func (q *QdrantIndex) Query(ctx context.Context, vector []float32, k int) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}
	if uint64(len(vector)) != q.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection %q has %d",
			ErrDimensionMismatch, len(vector), q.cfg.Collection, q.dim)
	}

	limit := uint64(k)
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.cfg.Collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	results := make([]Result, 0, len(points))
	for _, p := range points {
		r := Result{
			ID:       p.GetId().GetUuid(),
			Distance: 1 - p.GetScore(),
		}
		if payload := p.GetPayload(); payload != nil {
			r.Text = payload[payloadText].GetStringValue()
			r.Metadata.Source = payload[payloadSource].GetStringValue()
			r.Metadata.Page = int(payload[payloadPage].GetIntegerValue())
		}
		results = append(results, r)
	}
	return results, nil
}

// Rebuild deletes the collection and creates it again with cfg.VectorSize
// dimensions, whatever the old collection held.
func (q *QdrantIndex) Rebuild(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		if err := q.client.DeleteCollection(ctx, q.cfg.Collection); err != nil {
			return fmt.Errorf("qdrant: failed to delete collection %q: %w", q.cfg.Collection, err)
		}
	}
	return q.createCollection(ctx)
}

// Count returns the exact number of points in the collection.
func (q *QdrantIndex) Count(ctx context.Context) (int, error) {
	n, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.cfg.Collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count failed: %w", err)
	}
	return int(n), nil
}

// Dimension returns the vector size the live collection was created with.
func (q *QdrantIndex) Dimension(ctx context.Context) (int, error) {
	info, err := q.client.GetCollectionInfo(ctx, q.cfg.Collection)
	if err != nil {
		return 0, fmt.Errorf("qdrant: collection info failed: %w", err)
	}
	return int(info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()), nil
}

// Client exposes the underlying gRPC client for health probes.
func (q *QdrantIndex) Client() *qdrant.Client { return q.conn }

// Close closes the underlying Qdrant gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

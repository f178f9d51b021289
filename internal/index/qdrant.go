package index

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// QdrantConfig holds configuration for the Qdrant gRPC backend.
type QdrantConfig struct {
	// Host is the Qdrant server hostname. Default: "localhost".
	Host string

	// Port is the Qdrant gRPC port (not the HTTP REST port).
	// Default: 6334.
	Port int

	// Collection is the collection name prefix. Each build appends a
	// generation suffix. Default: "incidents".
	Collection string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// MaxMessageSize is the maximum gRPC message size in bytes.
	// Default: 16MB.
	MaxMessageSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Collection == "" {
		c.Collection = "incidents"
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 16 * 1024 * 1024
	}
}

// QdrantIndex is an Index backed by an external Qdrant server.
// Raw scores are cosine similarities.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	count      int
	logger     *zap.Logger
}

// NewQdrantIndex builds a Qdrant-backed index from the given entries.
// Each build writes a fresh generation-suffixed collection, so queries
// against a previous build keep reading the vectors it was built from.
// Close drops the collection; a collection left behind by a crashed
// process is orphaned until its name is reused.
func NewQdrantIndex(ctx context.Context, cfg QdrantConfig, entries []Entry, logger *zap.Logger) (*QdrantIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: qdrant backend requires at least one entry", ErrInvalidConfig)
	}

	collection := fmt.Sprintf("%s-%d", cfg.Collection, time.Now().UnixNano())

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		UseTLS: cfg.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(cfg.MaxMessageSize),
				grpc.MaxCallSendMsgSize(cfg.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant: %w", err)
	}

	if err := client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(len(entries[0].Vector)),
			Distance: qdrant.Distance_Cosine,
		}),
	}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("creating collection: %w", err)
	}

	points := make([]*qdrant.PointStruct, len(entries))
	for i, e := range entries {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(uint64(e.ID)),
			Vectors: qdrant.NewVectors(e.Vector...),
		}
	}
	wait := true
	if _, err := client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         points,
		Wait:           &wait,
	}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("upserting points: %w", err)
	}

	logger.Debug("qdrant index built",
		zap.String("collection", collection),
		zap.Int("entries", len(entries)),
	)

	return &QdrantIndex{
		client:     client,
		collection: collection,
		count:      len(entries),
		logger:     logger,
	}, nil
}

// Search returns the k most similar entries by cosine similarity.
func (idx *QdrantIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}

	results, err := idx.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: idx.collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(false),
	})
	if err != nil {
		return nil, fmt.Errorf("querying collection: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, p := range results {
		hits = append(hits, Hit{ID: int64(p.GetId().GetNum()), RawScore: p.GetScore()})
	}
	return hits, nil
}

// Metric returns MetricCosine.
func (idx *QdrantIndex) Metric() Metric { return MetricCosine }

// Len returns the number of indexed entries.
func (idx *QdrantIndex) Len() int { return idx.count }

// Close drops this build's collection and closes the gRPC connection.
func (idx *QdrantIndex) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := idx.client.DeleteCollection(ctx, idx.collection); err != nil {
		idx.logger.Warn("failed to drop retired collection",
			zap.String("collection", idx.collection),
			zap.Error(err),
		)
	}
	return idx.client.Close()
}

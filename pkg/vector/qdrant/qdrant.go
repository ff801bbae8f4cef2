// Package qdrant adapts github.com/qdrant/go-client as a vector store shaped
// like vector.Index, for deployments that want persistence managed
// externally by a real vector database instead of pkg/vector's save/load
// file format. It is not interchangeable with vector.Index (see Index) and
// nothing in this module constructs it. Grounded on the reference pack's
// Tangerg-lynx/ai/providers/vectorstores/qdrant store (collection
// bootstrap, point upsert, scored-point query shape).
package qdrant

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/qdrant/go-client/qdrant"

	"github.com/kgweave/kgweave/pkg/kgerr"
	"github.com/kgweave/kgweave/pkg/vector"
)

// Config configures a collection-backed Index.
type Config struct {
	Client           *qdrant.Client
	CollectionName   string
	Dimension        int
	InitializeSchema bool
}

// Index is a vector.Index-shaped adapter backed by a Qdrant collection,
// offering the same named operations (AddNode, Search, GetStatistics) as
// pkg/vector.Index. Its AddNode and Search take a context.Context, since the
// underlying gRPC client needs one — pkg/vector.Index's do not, so the two
// are not drop-in interchangeable without threading context through the
// in-process index as well; pkg/enrich and pkg/search do not yet do this.
type Index struct {
	client     *qdrant.Client
	collection string
	dimension  int
	size       atomic.Int64
}

// New constructs an Index, optionally creating the backing collection with
// cosine distance if it does not already exist.
func New(ctx context.Context, cfg Config) (*Index, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("vector/qdrant: client is required")
	}
	if cfg.CollectionName == "" {
		return nil, fmt.Errorf("vector/qdrant: collection name is required")
	}

	idx := &Index{client: cfg.Client, collection: cfg.CollectionName, dimension: cfg.Dimension}

	if cfg.InitializeSchema {
		exists, err := cfg.Client.CollectionExists(ctx, cfg.CollectionName)
		if err != nil {
			return nil, kgerr.New(kgerr.Index, "vector/qdrant.New", err)
		}
		if !exists {
			err = cfg.Client.CreateCollection(ctx, &qdrant.CreateCollection{
				CollectionName: cfg.CollectionName,
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
					Size:     uint64(cfg.Dimension),
					Distance: qdrant.Distance_Cosine,
				}),
			})
			if err != nil {
				return nil, kgerr.New(kgerr.Index, "vector/qdrant.New", err)
			}
		}
	}

	return idx, nil
}

// AddNode upserts vector as a point keyed directly by uri, with the node's
// metadata (plus the uri itself, so Search can recover it from the payload)
// stored alongside.
func (idx *Index) AddNode(ctx context.Context, uri string, vec []float32, metadata map[string]string) error {
	if len(vec) != idx.dimension {
		return kgerr.New(kgerr.Index, "vector/qdrant.AddNode", fmt.Errorf("dimension mismatch: got %d, want %d", len(vec), idx.dimension))
	}

	payload := make(map[string]*qdrant.Value, len(metadata)+1)
	uriValue, err := qdrant.NewValue(uri)
	if err != nil {
		return kgerr.New(kgerr.Index, "vector/qdrant.AddNode", err)
	}
	payload["uri"] = uriValue
	for k, v := range metadata {
		val, err := qdrant.NewValue(v)
		if err != nil {
			return kgerr.New(kgerr.Index, "vector/qdrant.AddNode", err)
		}
		payload[k] = val
	}

	point := &qdrant.PointStruct{
		Id:      qdrant.NewID(uri),
		Vectors: qdrant.NewVectors(vec...),
		Payload: payload,
	}

	_, err = idx.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: idx.collection,
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return kgerr.New(kgerr.Index, "vector/qdrant.AddNode", err)
	}
	idx.size.Add(1)
	return nil
}

// Search returns the topK nearest points above opts.MinScore.
func (idx *Index) Search(ctx context.Context, query []float32, k int, opts vector.SearchOptions) ([]vector.Result, error) {
	if len(query) != idx.dimension {
		return nil, kgerr.New(kgerr.Index, "vector/qdrant.Search", fmt.Errorf("dimension mismatch: got %d, want %d", len(query), idx.dimension))
	}

	threshold := float32(opts.MinScore)
	limit := uint64(k)
	points, err := idx.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: idx.collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          &limit,
		ScoreThreshold: &threshold,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, kgerr.New(kgerr.Index, "vector/qdrant.Search", err)
	}

	out := make([]vector.Result, 0, len(points))
	for _, p := range points {
		md := make(map[string]string, len(p.GetPayload()))
		uri := ""
		for k, v := range p.GetPayload() {
			if k == "uri" {
				uri = v.GetStringValue()
				continue
			}
			md[k] = v.GetStringValue()
		}
		out = append(out, vector.Result{URI: uri, Similarity: float64(p.GetScore()), Metadata: md})
	}
	return out, nil
}

// GetStatistics reports the index's configuration and the locally-tracked
// insert count (the client's read path has no cheap exact point-count call
// in this adapter's narrow usage, so size is tracked client-side rather
// than queried per call).
func (idx *Index) GetStatistics() vector.Statistics {
	return vector.Statistics{Dimension: idx.dimension, Size: int(idx.size.Load())}
}

// Close releases the underlying client connection.
func (idx *Index) Close() error {
	return idx.client.Close()
}

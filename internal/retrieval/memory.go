package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

type indexedDoc struct {
	doc Document
	vec []float32
}

// InMemoryIndex is a partitioned vector index held entirely in process.
// It backs development and tests; production deployments use the Postgres
// index instead.
type InMemoryIndex struct {
	mu         sync.RWMutex
	embedder   Embedder
	partitions map[string][]indexedDoc
}

func NewInMemoryIndex(embedder Embedder) *InMemoryIndex {
	return &InMemoryIndex{
		embedder:   embedder,
		partitions: make(map[string][]indexedDoc),
	}
}

// Add embeds and indexes one document under the partition.
func (x *InMemoryIndex) Add(ctx context.Context, partition string, doc Document) error {
	vec, err := x.embedder.Embed(ctx, doc.Content)
	if err != nil {
		return fmt.Errorf("embed document: %w", err)
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.partitions[partition] = append(x.partitions[partition], indexedDoc{doc: doc, vec: vec})
	return nil
}

// Search returns up to k documents from the partition ranked by cosine
// similarity to the query. An unknown partition yields no results, not an
// error.
func (x *InMemoryIndex) Search(ctx context.Context, partition, query string, k int) ([]Document, error) {
	if k <= 0 {
		return nil, nil
	}
	qv, err := x.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	x.mu.RLock()
	docs := x.partitions[partition]
	x.mu.RUnlock()

	type scored struct {
		doc   Document
		score float64
	}
	ranked := make([]scored, 0, len(docs))
	for _, d := range docs {
		ranked = append(ranked, scored{doc: d.doc, score: cosine(qv, d.vec)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if len(ranked) > k {
		ranked = ranked[:k]
	}
	out := make([]Document, len(ranked))
	for i, s := range ranked {
		out[i] = s.doc
	}
	return out, nil
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

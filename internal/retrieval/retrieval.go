package retrieval

import "context"

// Document is one retrieved knowledge chunk.
type Document struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Source returns the document's origin tag, empty when untagged.
func (d Document) Source() string {
	return d.Metadata["source"]
}

// Key is the identity used for cross-partition deduplication. Two chunks
// with the same content from the same source are one document, wherever
// they were indexed.
func (d Document) Key() string {
	return d.Content + "\x00" + d.Source()
}

// Searcher answers similarity queries against one named partition.
type Searcher interface {
	Search(ctx context.Context, partition, query string, k int) ([]Document, error)
}

// Retriever answers a query against whatever scope it was built for.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]Document, error)
}

// Reranker reorders candidates by relevance to the query. Implementations
// may drop candidates but never invent them.
type Reranker interface {
	Rerank(ctx context.Context, query string, docs []Document) ([]Document, error)
}

// Embedder turns text into a dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

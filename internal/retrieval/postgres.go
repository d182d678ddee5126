package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

// PostgresIndex stores knowledge chunks in PostgreSQL with pgvector and
// searches them by cosine distance.
type PostgresIndex struct {
	pool     *pgxpool.Pool
	embedder Embedder
	dim      int

	// fetchK widens the candidate pool before diversity selection; only
	// consulted when diversify is set.
	fetchK    int
	diversify bool
}

// PostgresOption tweaks index behavior.
type PostgresOption func(*PostgresIndex)

// WithDiversity enables maximal-marginal selection over a candidate pool of
// fetchK rows, trading a wider scan for less redundant results.
func WithDiversity(fetchK int) PostgresOption {
	return func(x *PostgresIndex) {
		x.diversify = true
		if fetchK > 0 {
			x.fetchK = fetchK
		}
	}
}

func NewPostgresIndex(ctx context.Context, databaseURL string, embedder Embedder, dim int, opts ...PostgresOption) (*PostgresIndex, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	x := &PostgresIndex{pool: pool, embedder: embedder, dim: dim, fetchK: 20}
	for _, opt := range opts {
		opt(x)
	}

	if err := x.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return x, nil
}

func (x *PostgresIndex) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector;`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS kb_documents (
			id BIGSERIAL PRIMARY KEY,
			partition TEXT NOT NULL,
			content TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			metadata JSONB NOT NULL DEFAULT '{}',
			embedding vector(%d),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`, x.dim),
		`CREATE INDEX IF NOT EXISTS idx_kb_documents_partition ON kb_documents (partition);`,
	}

	for _, stmt := range stmts {
		if _, err := x.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (x *PostgresIndex) Close() {
	x.pool.Close()
}

// Add embeds and stores one document under the partition.
func (x *PostgresIndex) Add(ctx context.Context, partition string, doc Document) error {
	vec, err := x.embedder.Embed(ctx, doc.Content)
	if err != nil {
		return fmt.Errorf("embed document: %w", err)
	}
	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = x.pool.Exec(ctx,
		`INSERT INTO kb_documents (partition, content, source, metadata, embedding)
		 VALUES ($1, $2, $3, $4, $5)`,
		partition,
		doc.Content,
		doc.Source(),
		meta,
		pgvector.NewVector(vec),
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// Search returns up to k documents from the partition ordered by cosine
// distance to the query embedding.
func (x *PostgresIndex) Search(ctx context.Context, partition, query string, k int) ([]Document, error) {
	if k <= 0 {
		return nil, nil
	}
	qv, err := x.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	limit := k
	if x.diversify && x.fetchK > k {
		limit = x.fetchK
	}

	rows, err := x.pool.Query(ctx,
		`SELECT content, source, metadata, embedding
		 FROM kb_documents
		 WHERE partition = $1
		 ORDER BY embedding <=> $2
		 LIMIT $3`,
		partition,
		pgvector.NewVector(qv),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search partition %s: %w", partition, err)
	}
	defer rows.Close()

	type candidate struct {
		doc Document
		vec []float32
	}
	var candidates []candidate
	for rows.Next() {
		var (
			content string
			source  string
			meta    []byte
			emb     pgvector.Vector
		)
		if err := rows.Scan(&content, &source, &meta, &emb); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		doc := Document{Content: content}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &doc.Metadata)
		}
		if doc.Metadata == nil {
			doc.Metadata = map[string]string{}
		}
		if source != "" {
			doc.Metadata["source"] = source
		}
		candidates = append(candidates, candidate{doc: doc, vec: emb.Slice()})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search partition %s: %w", partition, err)
	}

	if !x.diversify || len(candidates) <= k {
		out := make([]Document, 0, k)
		for i := 0; i < len(candidates) && i < k; i++ {
			out = append(out, candidates[i].doc)
		}
		return out, nil
	}

	// Greedy max-min selection: keep the nearest candidate, then repeatedly
	// take the candidate farthest from everything already selected.
	selected := []int{0}
	for len(selected) < k {
		bestIdx, bestDist := -1, -1.0
		for i := range candidates {
			if containsInt(selected, i) {
				continue
			}
			minDist := math.MaxFloat64
			for _, s := range selected {
				if d := 1 - cosine(candidates[i].vec, candidates[s].vec); d < minDist {
					minDist = d
				}
			}
			if minDist > bestDist {
				bestIdx, bestDist = i, minDist
			}
		}
		if bestIdx < 0 {
			break
		}
		selected = append(selected, bestIdx)
	}

	out := make([]Document, 0, len(selected))
	for _, i := range selected {
		out = append(out, candidates[i].doc)
	}
	return out, nil
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

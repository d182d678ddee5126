package retrieval

import (
	"context"
	"sync"

	"github.com/danghm/tellerbot/internal/intent"
)

// CatchAllPartition is the shared partition blended into every non-exclusive
// domain's retrieval scope.
const CatchAllPartition = "general"

// partitionRetriever scopes a Searcher to one partition.
type partitionRetriever struct {
	searcher  Searcher
	partition string
}

func (p partitionRetriever) Retrieve(ctx context.Context, query string, k int) ([]Document, error) {
	return p.searcher.Search(ctx, p.partition, query, k)
}

// Fanout queries several partition retrievers concurrently and merges their
// results. Each partition gets an equal share of the budget, rounded up, so
// the merged pool can exceed k before dedup and capping. A failing
// partition contributes nothing; the query still answers from the rest.
type Fanout struct {
	searcher   Searcher
	partitions []string
	onError    func(partition string, err error)
}

// NewFanout builds a fan-out retriever over the named partitions. The
// onError hook may be nil.
func NewFanout(searcher Searcher, partitions []string, onError func(partition string, err error)) *Fanout {
	return &Fanout{searcher: searcher, partitions: partitions, onError: onError}
}

func (f *Fanout) Retrieve(ctx context.Context, query string, k int) ([]Document, error) {
	if k <= 0 || len(f.partitions) == 0 {
		return nil, nil
	}
	per := (k + len(f.partitions) - 1) / len(f.partitions)

	results := make([][]Document, len(f.partitions))
	var wg sync.WaitGroup
	for i, partition := range f.partitions {
		wg.Add(1)
		go func(i int, partition string) {
			defer wg.Done()
			docs, err := f.searcher.Search(ctx, partition, query, per)
			if err != nil {
				if f.onError != nil {
					f.onError(partition, err)
				}
				return
			}
			results[i] = docs
		}(i, partition)
	}
	wg.Wait()

	merged := make([]Document, 0, k)
	seen := make(map[string]struct{})
	for _, docs := range results {
		for _, doc := range docs {
			key := doc.Key()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, doc)
			if len(merged) == k {
				return merged, nil
			}
		}
	}
	return merged, nil
}

// Router maps a classified domain to its retrieval scope. Exclusive domains
// search only their own partition so product answers never blend with
// generic marketing text; every other domain fans out over its own
// partition plus the catch-all.
type Router struct {
	searcher  Searcher
	exclusive map[intent.Domain]struct{}
	onError   func(partition string, err error)
}

// NewRouter builds a router over the given searcher. The onError hook is
// passed through to each fan-out and may be nil.
func NewRouter(searcher Searcher, onError func(partition string, err error)) *Router {
	return &Router{
		searcher: searcher,
		exclusive: map[intent.Domain]struct{}{
			intent.DomainLoan:    {},
			intent.DomainSavings: {},
		},
		onError: onError,
	}
}

// For returns the retriever scoped to the domain's partitions.
func (r *Router) For(domain intent.Domain) Retriever {
	partitions := r.Partitions(domain)
	if len(partitions) == 1 {
		return partitionRetriever{searcher: r.searcher, partition: partitions[0]}
	}
	return NewFanout(r.searcher, partitions, r.onError)
}

// Partitions lists the partitions the domain searches, own partition first.
func (r *Router) Partitions(domain intent.Domain) []string {
	if domain == intent.DomainSavingsGoal {
		domain = intent.DomainSavings
	}
	name := string(domain)
	if name == "" || name == CatchAllPartition {
		return []string{CatchAllPartition}
	}
	if _, exclusive := r.exclusive[domain]; exclusive {
		return []string{name}
	}
	return []string{name, CatchAllPartition}
}

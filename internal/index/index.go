// Package index implements the hybrid retrieval index: dense embeddings plus
// sparse term-frequency vectors, queried with lexical, semantic, or blended
// scoring.
package index

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mnemex/mnemex/internal/adapter"
)

// Tier tags an index entry with the memory tier its owner lives in.
type Tier string

const (
	TierBuffer    Tier = "buffer"
	TierEpisodic  Tier = "episodic"
	TierTactical  Tier = "tactical"
	TierStrategic Tier = "strategic"
)

// Mode selects the scoring signal for a search.
type Mode string

const (
	ModeLexical  Mode = "lexical"
	ModeSemantic Mode = "semantic"
	ModeHybrid   Mode = "hybrid"
)

// ErrEmptyIndex is returned by Search when the index holds zero entries.
var ErrEmptyIndex = errors.New("index: no entries")

// Ref identifies an owner record by tier and ID.
type Ref struct {
	Tier Tier   `json:"tier"`
	ID   string `json:"id"`
}

// Entry is the stored representation of one owner record. The index never
// owns the record itself; it holds only what ranking needs.
type Entry struct {
	Ref       Ref                `json:"ref"`
	Embedding []float32          `json:"embedding"`
	Terms     map[string]float64 `json:"terms"`
	CreatedAt time.Time          `json:"created_at"`
}

// Result is one ranked search hit.
type Result struct {
	Ref   Ref
	Score float64
}

// Index is the hybrid retrieval index. Mutations take the write lock;
// searches take the read lock and may run concurrently with each other.
type Index struct {
	mu       sync.RWMutex
	entries  map[Ref]*Entry
	embedder adapter.Embedder
	alpha    float64

	now func() time.Time
}

// New creates an Index. alpha is the hybrid blend weight on the semantic
// score (default 0.5 when out of range). embedder may be nil, in which case
// semantic scores are 0 and only lexical signal ranks results.
func New(embedder adapter.Embedder, alpha float64) *Index {
	if alpha < 0 || alpha > 1 {
		alpha = 0.5
	}
	return &Index{
		entries:  make(map[Ref]*Entry),
		embedder: embedder,
		alpha:    alpha,
		now:      time.Now,
	}
}

// Upsert indexes (or re-indexes) the content for the given owner.
// The embedding is computed before any state is touched: a failed or
// cancelled embed call leaves the index exactly as it was.
func (ix *Index) Upsert(ctx context.Context, tier Tier, id, content string) error {
	embedding, err := ix.embed(ctx, content)
	if err != nil {
		return fmt.Errorf("index: upsert %s/%s: %w", tier, id, err)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	ref := Ref{Tier: tier, ID: id}
	created := ix.now()
	if prev, ok := ix.entries[ref]; ok {
		created = prev.CreatedAt
	}
	ix.entries[ref] = &Entry{
		Ref:       ref,
		Embedding: embedding,
		Terms:     termFreq(content),
		CreatedAt: created,
	}
	return nil
}

// Remove deletes the entry for the owner. Removing an absent entry is a
// no-op: owners signal deletion unconditionally.
func (ix *Index) Remove(tier Tier, id string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.entries, Ref{Tier: tier, ID: id})
}

// Has reports whether an entry exists for the owner.
func (ix *Index) Has(tier Tier, id string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.entries[Ref{Tier: tier, ID: id}]
	return ok
}

// Len returns the number of live entries.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Search returns up to k entries ranked by the selected mode. The ordering
// is a total order (score desc, created desc, id asc) so equal inputs always
// produce identical output. Fewer than k results is not an error; a search
// against a zero-entry index is ErrEmptyIndex.
func (ix *Index) Search(ctx context.Context, query string, k int, mode Mode) ([]Result, error) {
	return ix.SearchTiers(ctx, query, k, mode, nil)
}

// SearchTiers is Search restricted to the given tiers (nil means all tiers).
func (ix *Index) SearchTiers(ctx context.Context, query string, k int, mode Mode, tiers []Tier) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}

	// Embed outside the lock; lexical-only searches never touch the embedder.
	var queryVec []float32
	if mode == ModeSemantic || mode == ModeHybrid {
		var err error
		queryVec, err = ix.embed(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("index: embed query: %w", err)
		}
	}
	queryTerms := termFreq(query)

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if len(ix.entries) == 0 {
		return nil, ErrEmptyIndex
	}

	allowed := map[Tier]bool{}
	for _, t := range tiers {
		allowed[t] = true
	}

	type scored struct {
		entry *Entry
		score float64
	}
	candidates := make([]scored, 0, len(ix.entries))
	for _, e := range ix.entries {
		if len(allowed) > 0 && !allowed[e.Ref.Tier] {
			continue
		}
		candidates = append(candidates, scored{entry: e, score: ix.score(e, queryVec, queryTerms, mode)})
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if !a.entry.CreatedAt.Equal(b.entry.CreatedAt) {
			return a.entry.CreatedAt.After(b.entry.CreatedAt)
		}
		if a.entry.Ref.ID != b.entry.Ref.ID {
			return a.entry.Ref.ID < b.entry.Ref.ID
		}
		return a.entry.Ref.Tier < b.entry.Ref.Tier
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}
	out := make([]Result, len(candidates))
	for i, c := range candidates {
		out[i] = Result{Ref: c.entry.Ref, Score: c.score}
	}
	return out, nil
}

// score computes the mode-selected similarity, with each signal clamped to
// [0,1] before blending.
func (ix *Index) score(e *Entry, queryVec []float32, queryTerms map[string]float64, mode Mode) float64 {
	switch mode {
	case ModeLexical:
		return clamp01(cosineTF(queryTerms, e.Terms))
	case ModeSemantic:
		return clamp01(cosineDense(queryVec, e.Embedding))
	default:
		semantic := clamp01(cosineDense(queryVec, e.Embedding))
		lexical := clamp01(cosineTF(queryTerms, e.Terms))
		return ix.alpha*semantic + (1-ix.alpha)*lexical
	}
}

func (ix *Index) embed(ctx context.Context, text string) ([]float32, error) {
	if ix.embedder == nil {
		return nil, nil
	}
	vecs, err := ix.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, nil
	}
	return vecs[0], nil
}

// Entries returns a copy of every entry, for persistence.
func (ix *Index) Entries() []Entry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make([]Entry, 0, len(ix.entries))
	for _, e := range ix.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Ref.Tier != out[j].Ref.Tier {
			return out[i].Ref.Tier < out[j].Ref.Tier
		}
		return out[i].Ref.ID < out[j].Ref.ID
	})
	return out
}

// Restore replaces the index contents with previously persisted entries.
func (ix *Index) Restore(entries []Entry) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.entries = make(map[Ref]*Entry, len(entries))
	for i := range entries {
		e := entries[i]
		ix.entries[e.Ref] = &e
	}
}

// Alpha returns the hybrid blend weight.
func (ix *Index) Alpha() float64 { return ix.alpha }

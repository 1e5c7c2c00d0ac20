// Package session orchestrates the memory core for one agent session: it
// feeds observations through the buffer, migrates evictions into the
// hierarchy, assembles memory-augmented prompts, and persists state.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mnemex/mnemex/internal/adapter"
	"github.com/mnemex/mnemex/internal/buffer"
	"github.com/mnemex/mnemex/internal/config"
	"github.com/mnemex/mnemex/internal/hierarchy"
	"github.com/mnemex/mnemex/internal/index"
	"github.com/mnemex/mnemex/internal/store"
	"github.com/mnemex/mnemex/internal/token"
)

// Session wires the buffer, index, and hierarchy together behind the
// operations a consumer needs: observe, ask, recall, consolidate, end.
type Session struct {
	cfg config.Config

	buf     *buffer.Buffer
	idx     *index.Index
	hier    *hierarchy.Hierarchy
	store   *store.Store
	gen     adapter.Generator
	counter token.Counter
}

// Options for optional collaborators. A nil generator disables Ask and
// compression; a nil store disables persistence.
type Options struct {
	Generator adapter.Generator
	Store     *store.Store
	Counter   token.Counter
}

// New builds a Session from configuration. When a store is supplied, the
// persisted snapshot is restored before the session starts.
func New(cfg config.Config, embedder adapter.Embedder, opts Options) (*Session, error) {
	policy, err := buffer.NewPolicy(cfg.Buffer.Policy)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	if rel, ok := policy.(buffer.Relevance); ok {
		if cfg.Buffer.RecencyWeight > 0 || cfg.Buffer.FrequencyWeight > 0 || cfg.Buffer.ImportanceWeight > 0 {
			rel.RecencyWeight = cfg.Buffer.RecencyWeight
			rel.FrequencyWeight = cfg.Buffer.FrequencyWeight
			rel.ImportanceWeight = cfg.Buffer.ImportanceWeight
			policy = rel
		}
	}

	counter := opts.Counter
	if counter == nil {
		counter = token.Best()
	}

	var bufOpts []buffer.Option
	if cfg.Buffer.SafetyMargin > 0 {
		bufOpts = append(bufOpts, buffer.WithSafetyMargin(cfg.Buffer.SafetyMargin))
	}
	if cfg.Buffer.Compress && opts.Generator != nil {
		bufOpts = append(bufOpts, buffer.WithCompressor(NewLLMCompressor(opts.Generator, counter)))
	}

	idx := index.New(embedder, cfg.Index.Alpha)
	s := &Session{
		cfg: cfg,
		buf: buffer.New(cfg.Buffer.MaxTokens, policy, bufOpts...),
		idx: idx,
		hier: hierarchy.New(idx, hierarchy.Config{
			SimilarityThreshold: cfg.Hierarchy.SimilarityThreshold,
			ConfidenceThreshold: cfg.Hierarchy.ConfidenceThreshold,
			HalfLifeDays:        cfg.Hierarchy.HalfLifeDays,
			ForgetThreshold:     cfg.Hierarchy.ForgetThreshold,
		}),
		store:   opts.Store,
		gen:     opts.Generator,
		counter: counter,
	}

	if s.store != nil {
		snap, err := s.store.Load()
		if err != nil {
			return nil, fmt.Errorf("session: restore: %w", err)
		}
		skipped := s.buf.Restore(snap.Items)
		s.hier.Restore(snap.Hierarchy)
		s.idx.Restore(snap.Entries)
		// A shrunken token budget can orphan persisted items; their index
		// entries go with them so no entry outlives its owner.
		for _, it := range skipped {
			s.idx.Remove(index.TierBuffer, strconv.FormatUint(it.ID, 10))
		}
	}
	return s, nil
}

// Observe feeds one piece of content into working memory. Items evicted to
// make room are migrated into episodic memory; their buffer-tier index
// entries are replaced by episodic ones.
func (s *Session) Observe(ctx context.Context, content string, importance float64) (uint64, error) {
	cost := s.counter.Count(content)

	var evicted []buffer.Item
	id, err := s.buf.Insert(ctx, content, cost, importance, func(it buffer.Item) {
		evicted = append(evicted, it)
	})
	if err != nil {
		return 0, fmt.Errorf("session: observe: %w", err)
	}

	var firstErr error
	for _, it := range evicted {
		s.idx.Remove(index.TierBuffer, strconv.FormatUint(it.ID, 10))
		if _, err := s.hier.RecordEpisode(ctx, it.Content, it.Importance, []uint64{it.ID}); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := s.idx.Upsert(ctx, index.TierBuffer, strconv.FormatUint(id, 10), content); err != nil {
		// Keep buffer and index consistent: an item that cannot be indexed
		// is not admitted.
		_, _ = s.buf.Remove(id)
		return 0, fmt.Errorf("session: observe: %w", err)
	}
	if firstErr != nil {
		return id, fmt.Errorf("session: observe: migrate evicted: %w", firstErr)
	}
	return id, nil
}

// Recall returns up to k memories from the hierarchy tiers ranked by hybrid
// relevance to the query.
func (s *Session) Recall(ctx context.Context, query string, k int) ([]hierarchy.Recalled, error) {
	if k <= 0 {
		k = s.cfg.Session.RecallK
	}
	return s.hier.Recall(ctx, query, k)
}

// Search queries the index across every tier, including live buffer items,
// with the given scoring mode.
func (s *Session) Search(ctx context.Context, query string, k int, mode index.Mode) ([]hierarchy.Recalled, error) {
	if k <= 0 {
		k = s.cfg.Session.RecallK
	}
	results, err := s.idx.Search(ctx, query, k, mode)
	if err != nil {
		return nil, err
	}

	out := make([]hierarchy.Recalled, 0, len(results))
	for _, r := range results {
		summary, ok := s.resolve(r.Ref)
		if !ok {
			continue
		}
		out = append(out, hierarchy.Recalled{
			Tier:    string(r.Ref.Tier),
			ID:      r.Ref.ID,
			Summary: summary,
			Score:   r.Score,
		})
	}
	return out, nil
}

// resolve finds the display summary for a search hit in whichever tier owns it.
func (s *Session) resolve(ref index.Ref) (string, bool) {
	if ref.Tier == index.TierBuffer {
		id, err := strconv.ParseUint(ref.ID, 10, 64)
		if err != nil {
			return "", false
		}
		it, err := s.buf.Get(id)
		if err != nil {
			return "", false
		}
		return it.Content, true
	}

	switch ref.Tier {
	case index.TierEpisodic:
		if rec, ok := s.hier.Episode(ref.ID); ok {
			return rec.Summary, true
		}
	case index.TierTactical:
		for _, p := range s.hier.Patterns() {
			if p.ID == ref.ID {
				return p.Signature, true
			}
		}
	case index.TierStrategic:
		for _, r := range s.hier.Rules() {
			if r.ID == ref.ID {
				return r.Condition + " -> " + r.Consequence, true
			}
		}
	}
	return "", false
}

// Ask answers a query with memory-augmented generation: recalled memories and
// the working context are assembled into the system prompt, the model
// answers, and the exchange is observed back into working memory.
func (s *Session) Ask(ctx context.Context, query string) (string, error) {
	if s.gen == nil {
		return "", fmt.Errorf("session: ask: no generator configured")
	}

	memories, err := s.Recall(ctx, query, s.cfg.Session.RecallK)
	if err != nil && !errors.Is(err, index.ErrEmptyIndex) {
		return "", fmt.Errorf("session: ask: recall: %w", err)
	}

	system := buildSystemPrompt(memories, s.buf.Snapshot(), s.cfg.Session.AskBudget, s.counter)
	answer, err := s.gen.Generate(ctx, adapter.GenerateRequest{
		SystemPrompt: system,
		Prompt:       query,
		Model:        s.cfg.Provider.Model,
	})
	if err != nil {
		return "", fmt.Errorf("session: ask: generate: %w", err)
	}

	// Remember the exchange; a failed observe does not invalidate the answer.
	_, _ = s.Observe(ctx, "Q: "+query+"\nA: "+answer, 0.5)
	return answer, nil
}

// Consolidate runs one consolidation pass over the hierarchy.
func (s *Session) Consolidate(ctx context.Context) (hierarchy.ConsolidateStats, error) {
	return s.hier.Consolidate(ctx)
}

// Status summarises the live memory state.
type Status struct {
	BufferItems  int
	BufferUsage  float64
	MaxTokens    int
	SafetyMargin float64
	Policy       string
	Episodes     int
	Patterns     int
	Rules        int
	IndexEntries int
	At           time.Time
}

// Status reports current occupancy across all tiers.
func (s *Session) Status() Status {
	return Status{
		BufferItems:  s.buf.Len(),
		BufferUsage:  s.buf.UsageRatio(),
		MaxTokens:    s.buf.MaxTokens(),
		SafetyMargin: s.buf.SafetyMargin(),
		Policy:       s.buf.PolicyName(),
		Episodes:     len(s.hier.Episodes()),
		Patterns:     len(s.hier.Patterns()),
		Rules:        len(s.hier.Rules()),
		IndexEntries: s.idx.Len(),
		At:           time.Now(),
	}
}

// Buffer exposes the working-context buffer for callers that need direct
// access (status displays, tests).
func (s *Session) Buffer() *buffer.Buffer { return s.buf }

// Hierarchy exposes the memory hierarchy.
func (s *Session) Hierarchy() *hierarchy.Hierarchy { return s.hier }

// Index exposes the shared retrieval index.
func (s *Session) Index() *index.Index { return s.idx }

// End runs a final consolidation pass and persists the full memory state.
// Without a store, only the consolidation runs.
func (s *Session) End(ctx context.Context) error {
	if _, err := s.hier.Consolidate(ctx); err != nil {
		return fmt.Errorf("session: end: %w", err)
	}
	if s.store == nil {
		return nil
	}
	err := s.store.Save(store.Snapshot{
		Items:     s.buf.Snapshot(),
		Hierarchy: s.hier.Dump(),
		Entries:   s.idx.Entries(),
	})
	if err != nil {
		return fmt.Errorf("session: end: %w", err)
	}
	return nil
}

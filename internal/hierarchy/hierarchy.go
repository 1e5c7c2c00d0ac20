package hierarchy

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/mnemex/mnemex/internal/index"
)

// Hierarchy owns the episodic store, tactical patterns, and strategic rules
// for one memory instance. It registers every record with the shared hybrid
// index so Recall can span all tiers.
//
// Mutations hold the write lock; Recall and the read accessors hold the read
// lock. The index has its own lock and is never called while holding ours,
// except where mutation ordering requires the combined consistency (upsert
// before the record becomes visible, remove after it is gone).
type Hierarchy struct {
	mu sync.RWMutex

	cfg Config
	idx *index.Index

	episodes     map[string]*EpisodicRecord
	episodeOrder []string
	patterns     map[string]*TacticalPattern
	rules        map[string]*StrategicRule
	// memberOf maps an episode ID to the pattern that absorbed it.
	memberOf map[string]string
	// ruleFor maps a pattern ID to its derived rule.
	ruleFor map[string]string

	now     func() time.Time
	entropy *ulid.MonotonicEntropy
}

// New creates an empty Hierarchy sharing the given index.
func New(idx *index.Index, cfg Config) *Hierarchy {
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = DefaultConfig().SimilarityThreshold
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = DefaultConfig().ConfidenceThreshold
	}
	if cfg.HalfLifeDays <= 0 {
		cfg.HalfLifeDays = DefaultConfig().HalfLifeDays
	}
	if cfg.ForgetThreshold <= 0 {
		cfg.ForgetThreshold = DefaultConfig().ForgetThreshold
	}
	return &Hierarchy{
		cfg:      cfg,
		idx:      idx,
		episodes: make(map[string]*EpisodicRecord),
		patterns: make(map[string]*TacticalPattern),
		rules:    make(map[string]*StrategicRule),
		memberOf: make(map[string]string),
		ruleFor:  make(map[string]string),
		now:      time.Now,
		entropy:  ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

// newID returns a fresh ULID. ULIDs sort by creation time, which keeps
// deterministic tie-breaking (id asc) aligned with insertion order.
func (h *Hierarchy) newID() string {
	return ulid.MustNew(ulid.Timestamp(h.now()), h.entropy).String()
}

// RecordEpisode consolidates content into a new episodic record and registers
// it with the index. The index entry is written before the record becomes
// visible, so a failed embed call leaves neither half behind.
func (h *Hierarchy) RecordEpisode(ctx context.Context, content string, importance float64, sourceIDs []uint64) (EpisodicRecord, error) {
	if importance < 0 {
		importance = 0
	} else if importance > 1 {
		importance = 1
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	rec := &EpisodicRecord{
		ID:         h.newID(),
		Summary:    content,
		SourceIDs:  append([]uint64(nil), sourceIDs...),
		Importance: importance,
		CreatedAt:  h.now(),
	}

	if err := h.idx.Upsert(ctx, index.TierEpisodic, rec.ID, rec.Summary); err != nil {
		return EpisodicRecord{}, fmt.Errorf("hierarchy: record episode: %w", err)
	}

	h.episodes[rec.ID] = rec
	h.episodeOrder = append(h.episodeOrder, rec.ID)
	return *rec, nil
}

// Episode returns the episodic record by ID.
func (h *Hierarchy) Episode(id string) (EpisodicRecord, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	rec, ok := h.episodes[id]
	if !ok {
		return EpisodicRecord{}, false
	}
	return *rec, true
}

// Episodes returns all episodic records in insertion order.
func (h *Hierarchy) Episodes() []EpisodicRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]EpisodicRecord, 0, len(h.episodeOrder))
	for _, id := range h.episodeOrder {
		out = append(out, *h.episodes[id])
	}
	return out
}

// Patterns returns all tactical patterns, ordered by ID.
func (h *Hierarchy) Patterns() []TacticalPattern {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]TacticalPattern, 0, len(h.patterns))
	for _, p := range h.patterns {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Rules returns all strategic rules, ordered by ID.
func (h *Hierarchy) Rules() []StrategicRule {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]StrategicRule, 0, len(h.rules))
	for _, r := range h.rules {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// tierPriority orders tiers for recall: compressed knowledge first.
func tierPriority(t index.Tier) int {
	switch t {
	case index.TierStrategic:
		return 0
	case index.TierTactical:
		return 1
	case index.TierEpisodic:
		return 2
	default:
		return 3
	}
}

// Recall queries the index across all three hierarchy tiers. At equal score,
// strategic beats tactical beats episodic; remaining ties break by created
// time (newest first) then ID.
func (h *Hierarchy) Recall(ctx context.Context, query string, k int) ([]Recalled, error) {
	if k <= 0 {
		return nil, nil
	}

	// Rank every candidate: tier preference applies after scoring, and a
	// bounded fetch could cut a preferred tier out of a large tie group
	// before it gets the chance to win.
	n := h.idx.Len()
	if n == 0 {
		return nil, index.ErrEmptyIndex
	}
	results, err := h.idx.SearchTiers(ctx, query, n, index.ModeHybrid,
		[]index.Tier{index.TierEpisodic, index.TierTactical, index.TierStrategic})
	if err != nil {
		return nil, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	recalled := make([]Recalled, 0, len(results))
	for _, r := range results {
		summary, ok := h.summaryLocked(r.Ref)
		if !ok {
			continue // index raced a deletion; skip rather than invent
		}
		recalled = append(recalled, Recalled{
			Tier:    string(r.Ref.Tier),
			ID:      r.Ref.ID,
			Summary: summary,
			Score:   r.Score,
		})
	}

	sort.SliceStable(recalled, func(i, j int) bool {
		if recalled[i].Score != recalled[j].Score {
			return recalled[i].Score > recalled[j].Score
		}
		pi, pj := tierPriority(index.Tier(recalled[i].Tier)), tierPriority(index.Tier(recalled[j].Tier))
		if pi != pj {
			return pi < pj
		}
		return recalled[i].ID < recalled[j].ID
	})

	if len(recalled) > k {
		recalled = recalled[:k]
	}
	return recalled, nil
}

func (h *Hierarchy) summaryLocked(ref index.Ref) (string, bool) {
	switch ref.Tier {
	case index.TierEpisodic:
		if rec, ok := h.episodes[ref.ID]; ok {
			return rec.Summary, true
		}
	case index.TierTactical:
		if p, ok := h.patterns[ref.ID]; ok {
			return p.Signature, true
		}
	case index.TierStrategic:
		if r, ok := h.rules[ref.ID]; ok {
			return r.Condition + " -> " + r.Consequence, true
		}
	}
	return "", false
}

// State is the persistable view of a Hierarchy.
type State struct {
	Episodes []EpisodicRecord  `json:"episodes"`
	Patterns []TacticalPattern `json:"patterns"`
	Rules    []StrategicRule   `json:"rules"`
}

// Dump exports the hierarchy state for persistence.
func (h *Hierarchy) Dump() State {
	h.mu.RLock()
	defer h.mu.RUnlock()

	st := State{
		Episodes: make([]EpisodicRecord, 0, len(h.episodeOrder)),
	}
	for _, id := range h.episodeOrder {
		st.Episodes = append(st.Episodes, *h.episodes[id])
	}
	for _, p := range h.patterns {
		st.Patterns = append(st.Patterns, *p)
	}
	for _, r := range h.rules {
		st.Rules = append(st.Rules, *r)
	}
	sort.Slice(st.Patterns, func(i, j int) bool { return st.Patterns[i].ID < st.Patterns[j].ID })
	sort.Slice(st.Rules, func(i, j int) bool { return st.Rules[i].ID < st.Rules[j].ID })
	return st
}

// Restore replaces the hierarchy contents with persisted state. Index
// entries are restored separately by the store; Restore only rebuilds the
// in-memory records and their weak-reference maps.
func (h *Hierarchy) Restore(st State) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.episodes = make(map[string]*EpisodicRecord, len(st.Episodes))
	h.episodeOrder = h.episodeOrder[:0]
	h.patterns = make(map[string]*TacticalPattern, len(st.Patterns))
	h.rules = make(map[string]*StrategicRule, len(st.Rules))
	h.memberOf = make(map[string]string)
	h.ruleFor = make(map[string]string)

	// ULIDs sort by creation time, so ID order reproduces insertion order.
	sort.Slice(st.Episodes, func(i, j int) bool { return st.Episodes[i].ID < st.Episodes[j].ID })
	for i := range st.Episodes {
		rec := st.Episodes[i]
		h.episodes[rec.ID] = &rec
		h.episodeOrder = append(h.episodeOrder, rec.ID)
	}
	for i := range st.Patterns {
		p := st.Patterns[i]
		h.patterns[p.ID] = &p
		for _, m := range p.MemberIDs {
			h.memberOf[m] = p.ID
		}
	}
	for i := range st.Rules {
		r := st.Rules[i]
		h.rules[r.ID] = &r
		h.ruleFor[r.PatternID] = r.ID
	}
}

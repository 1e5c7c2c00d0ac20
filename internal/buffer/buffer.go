package buffer

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Compressor shrinks item content before hard eviction. Implementations are
// injected (typically an LLM summarizer); the buffer itself never talks to
// a model. A Compressor that cannot improve on the input should return it
// unchanged.
type Compressor interface {
	Compress(ctx context.Context, content string, targetTokens int) (compressed string, tokenCost int, err error)
}

// Buffer is a token-bounded, ordered working set of Items.
//
// All mutating operations take the write lock; Snapshot and UsageRatio take
// the read lock, so reads may run concurrently with each other but never
// with a mutation.
type Buffer struct {
	mu sync.RWMutex

	maxTokens    int
	safetyMargin float64
	policy       Policy
	compressor   Compressor

	items  []*Item // insertion order
	byID   map[uint64]*Item
	nextID uint64
	used   int

	now func() time.Time
}

// Option configures a Buffer at construction.
type Option func(*Buffer)

// WithCompressor injects a pre-eviction compression hook.
func WithCompressor(c Compressor) Option {
	return func(b *Buffer) { b.compressor = c }
}

// WithSafetyMargin overrides the default 0.9 safety margin.
func WithSafetyMargin(m float64) Option {
	return func(b *Buffer) {
		if m > 0 && m <= 1 {
			b.safetyMargin = m
		}
	}
}

// New creates a Buffer with the given token budget and eviction policy.
func New(maxTokens int, policy Policy, opts ...Option) *Buffer {
	if policy == nil {
		policy = FIFO{}
	}
	b := &Buffer{
		maxTokens:    maxTokens,
		safetyMargin: 0.9,
		policy:       policy,
		byID:         make(map[uint64]*Item),
		nextID:       1,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// budget is the effective token ceiling after the safety margin.
func (b *Buffer) budget() int {
	return int(float64(b.maxTokens) * b.safetyMargin)
}

// Insert adds a new item, evicting as needed to stay within budget.
// It fails with a *CapacityError only when tokenCost exceeds the budget
// outright; otherwise it always succeeds. Evicted items are passed to the
// onEvict callback (if non-nil) in eviction order before being dropped, so
// callers can migrate them into longer-term storage.
func (b *Buffer) Insert(ctx context.Context, content string, tokenCost int, importance float64, onEvict func(Item)) (uint64, error) {
	if tokenCost < 0 {
		tokenCost = 0
	}
	if importance < 0 {
		importance = 0
	} else if importance > 1 {
		importance = 1
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if tokenCost > b.budget() {
		return 0, &CapacityError{TokenCost: tokenCost, Budget: b.budget()}
	}

	for _, it := range b.evictToFitLocked(ctx, tokenCost) {
		if onEvict != nil {
			onEvict(it)
		}
	}

	now := b.now()
	it := &Item{
		ID:         b.nextID,
		Content:    content,
		TokenCost:  tokenCost,
		Importance: importance,
		LastAccess: now,
		CreatedAt:  now,
		Seq:        b.nextID,
	}
	b.nextID++
	b.items = append(b.items, it)
	b.byID[it.ID] = it
	b.used += tokenCost
	return it.ID, nil
}

// Touch records an access to the item, feeding the recency and frequency
// signals used by LRU and Relevance eviction.
func (b *Buffer) Touch(id uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	it, ok := b.byID[id]
	if !ok {
		return ErrNotFound
	}
	it.AccessCnt++
	it.LastAccess = b.now()
	return nil
}

// Get returns a copy of the item and records an access.
func (b *Buffer) Get(id uint64) (Item, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	it, ok := b.byID[id]
	if !ok {
		return Item{}, ErrNotFound
	}
	it.AccessCnt++
	it.LastAccess = b.now()
	return *it, nil
}

// Remove deletes an item without the eviction pipeline (caller-driven drop).
func (b *Buffer) Remove(id uint64) (Item, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	it, ok := b.byID[id]
	if !ok {
		return Item{}, ErrNotFound
	}
	b.deleteLocked(it)
	return *it, nil
}

// EvictToFit removes the lowest-scoring items until required tokens fit
// within the budget, returning the removed items in eviction order.
func (b *Buffer) EvictToFit(ctx context.Context, required int) []Item {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.evictToFitLocked(ctx, required)
}

// evictToFitLocked repeatedly compresses or removes the lowest-scoring item
// until required tokens fit within the budget. Caller holds the write lock.
func (b *Buffer) evictToFitLocked(ctx context.Context, required int) []Item {
	var evicted []Item
	budget := b.budget()

	for b.used+required > budget && len(b.items) > 0 {
		victim := b.lowestLocked()

		// Compression first: if the hook can shrink the victim enough to
		// make room, keep it.
		if b.compressor != nil {
			need := b.used + required - budget
			target := victim.TokenCost - need
			if target > 0 {
				content, cost, err := b.compressor.Compress(ctx, victim.Content, target)
				if err == nil && cost < victim.TokenCost && cost >= 0 {
					b.used -= victim.TokenCost - cost
					victim.Content = content
					victim.TokenCost = cost
					continue
				}
			}
		}

		b.deleteLocked(victim)
		evicted = append(evicted, *victim)
	}
	return evicted
}

// lowestLocked returns the live item with the lowest eviction score.
// Deterministic: ties resolve via the policy's tie-break key, then by
// insertion sequence.
func (b *Buffer) lowestLocked() *Item {
	now := b.now()
	best := b.items[0]
	bestScore := b.policy.Score(*best, now)
	for _, it := range b.items[1:] {
		s := b.policy.Score(*it, now)
		switch {
		case s < bestScore:
			best, bestScore = it, s
		case s == bestScore:
			if tieBreak(b.policy, *it) < tieBreak(b.policy, *best) ||
				(tieBreak(b.policy, *it) == tieBreak(b.policy, *best) && it.Seq < best.Seq) {
				best = it
			}
		}
	}
	return best
}

func (b *Buffer) deleteLocked(it *Item) {
	delete(b.byID, it.ID)
	b.used -= it.TokenCost
	for i, cur := range b.items {
		if cur.ID == it.ID {
			b.items = append(b.items[:i], b.items[i+1:]...)
			break
		}
	}
}

// Snapshot returns copies of all items in insertion order. It is side-effect
// free: access counts are not touched.
func (b *Buffer) Snapshot() []Item {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Item, len(b.items))
	for i, it := range b.items {
		out[i] = *it
	}
	return out
}

// UsageRatio returns current tokens divided by the configured maximum.
func (b *Buffer) UsageRatio() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.maxTokens == 0 {
		return 0
	}
	return float64(b.used) / float64(b.maxTokens)
}

// Len returns the number of live items.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.items)
}

// MaxTokens returns the configured token budget before the safety margin.
func (b *Buffer) MaxTokens() int { return b.maxTokens }

// SafetyMargin returns the configured safety margin.
func (b *Buffer) SafetyMargin() float64 { return b.safetyMargin }

// PolicyName returns the active eviction policy's name.
func (b *Buffer) PolicyName() string { return b.policy.Name() }

// Restore replaces the buffer contents with previously persisted items.
// Items that no longer fit the budget are skipped in sequence order, so the
// restored buffer never exceeds its ceiling. Skipped items are returned so
// the caller can retire whatever still references them (their index entries
// in particular).
func (b *Buffer) Restore(items []Item) []Item {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items = b.items[:0]
	b.byID = make(map[uint64]*Item)
	b.used = 0
	b.nextID = 1

	var skipped []Item
	sort.SliceStable(items, func(i, j int) bool { return items[i].Seq < items[j].Seq })
	budget := b.budget()
	for i := range items {
		it := items[i]
		if b.used+it.TokenCost > budget {
			skipped = append(skipped, it)
			continue
		}
		cp := it
		b.items = append(b.items, &cp)
		b.byID[cp.ID] = &cp
		b.used += cp.TokenCost
		if cp.ID >= b.nextID {
			b.nextID = cp.ID + 1
		}
	}
	return skipped
}

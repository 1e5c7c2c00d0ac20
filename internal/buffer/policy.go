package buffer

import (
	"fmt"
	"time"
)

// Policy scores items for eviction. The lowest-scoring item is evicted first.
// Scores must be deterministic given the item and the supplied clock reading.
type Policy interface {
	// Name identifies the policy in config files and status output.
	Name() string
	// Score returns the eviction score for it. Lower is evicted sooner.
	Score(it Item, now time.Time) float64
}

// NewPolicy constructs the named eviction policy.
// Valid names: fifo, lru, importance, relevance.
func NewPolicy(name string) (Policy, error) {
	switch name {
	case "fifo", "":
		return FIFO{}, nil
	case "lru":
		return LRU{}, nil
	case "importance":
		return ImportancePolicy{}, nil
	case "relevance":
		return DefaultRelevance(), nil
	default:
		return nil, fmt.Errorf("buffer: unknown eviction policy %q (valid: fifo, lru, importance, relevance)", name)
	}
}

// FIFO evicts in insertion order.
type FIFO struct{}

func (FIFO) Name() string { return "fifo" }

func (FIFO) Score(it Item, _ time.Time) float64 {
	return float64(it.Seq)
}

// LRU evicts the least recently accessed item first.
// Ties fall through to insertion order via the sort in evictionOrder.
type LRU struct{}

func (LRU) Name() string { return "lru" }

func (LRU) Score(it Item, _ time.Time) float64 {
	return float64(it.LastAccess.UnixNano())
}

// ImportancePolicy evicts the least important item first, breaking ties by
// least recent access.
type ImportancePolicy struct{}

func (ImportancePolicy) Name() string { return "importance" }

func (ImportancePolicy) Score(it Item, _ time.Time) float64 {
	return it.Importance
}

// tieBreak returns a secondary ordering key for equal scores.
// Most policies fall back to insertion order; importance prefers evicting
// the item accessed longest ago.
func tieBreak(p Policy, it Item) float64 {
	if _, ok := p.(ImportancePolicy); ok {
		return float64(it.LastAccess.UnixNano())
	}
	return float64(it.Seq)
}

// Relevance blends recency, access frequency, and importance into one score.
// Weights are normalised at construction so the blended score stays in [0,1].
type Relevance struct {
	RecencyWeight    float64
	FrequencyWeight  float64
	ImportanceWeight float64
	// HalfLife controls recency decay; an item untouched for one half-life
	// contributes half its recency weight.
	HalfLife time.Duration
}

// DefaultRelevance returns a Relevance policy with equal weights and a
// one-hour recency half-life.
func DefaultRelevance() Relevance {
	return Relevance{
		RecencyWeight:    1.0 / 3,
		FrequencyWeight:  1.0 / 3,
		ImportanceWeight: 1.0 / 3,
		HalfLife:         time.Hour,
	}
}

func (Relevance) Name() string { return "relevance" }

func (r Relevance) Score(it Item, now time.Time) float64 {
	total := r.RecencyWeight + r.FrequencyWeight + r.ImportanceWeight
	if total <= 0 {
		return 0
	}

	age := now.Sub(it.LastAccess)
	if age < 0 {
		age = 0
	}
	recency := 1.0
	if r.HalfLife > 0 {
		recency = 1.0 / (1.0 + age.Seconds()/r.HalfLife.Seconds())
	}

	// Saturating frequency signal: 0 accesses -> 0, many accesses -> 1.
	frequency := float64(it.AccessCnt) / float64(it.AccessCnt+1)

	return (r.RecencyWeight*recency + r.FrequencyWeight*frequency + r.ImportanceWeight*it.Importance) / total
}

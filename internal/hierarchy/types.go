// Package hierarchy implements the multi-level memory hierarchy: episodic
// records consolidated into tactical patterns and strategic rules, with
// adaptive forgetting of low-value episodic detail.
package hierarchy

import "time"

// EpisodicRecord is a consolidated memory unit created from evicted or aged
// context items.
type EpisodicRecord struct {
	ID      string  `json:"id"`
	Summary string  `json:"summary"`
	// SourceIDs records which buffer items this episode came from.
	// Provenance only: the items themselves are long gone.
	SourceIDs  []uint64  `json:"source_ids,omitempty"`
	Importance float64   `json:"importance"`
	CreatedAt  time.Time `json:"created_at"`
}

// Age returns how old the record is at the given instant.
func (r EpisodicRecord) Age(now time.Time) time.Duration {
	return now.Sub(r.CreatedAt)
}

// TacticalPattern groups two or more episodic records sharing a detected
// regularity. MemberIDs are weak references: deleting an episodic record
// never dangles, lookups simply miss.
type TacticalPattern struct {
	ID        string   `json:"id"`
	Signature string   `json:"signature"` // representative summary of the group
	MemberIDs []string `json:"member_ids"`
	Frequency int      `json:"frequency"`
	// EpisodesConsidered is the episode count when membership last changed.
	// Confidence keeps this denominator, so later forgetting of unrelated
	// episodes cannot inflate it.
	EpisodesConsidered int       `json:"episodes_considered"`
	Confidence         float64   `json:"confidence"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// StrategicRule is a generalization derived from a tactical pattern that
// cleared the confidence threshold. PatternID is a weak reference.
type StrategicRule struct {
	ID          string    `json:"id"`
	Condition   string    `json:"condition"`
	Consequence string    `json:"consequence"`
	Confidence  float64   `json:"confidence"`
	PatternID   string    `json:"pattern_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Config holds the consolidation knobs. The similarity threshold, confidence
// threshold, half-life, and forget threshold are deliberately configuration,
// not constants.
type Config struct {
	// SimilarityThreshold is the minimum semantic score for two episodes to
	// be grouped into one pattern.
	SimilarityThreshold float64
	// ConfidenceThreshold is the minimum pattern confidence
	// (frequency / total episodes) that yields a strategic rule.
	ConfidenceThreshold float64
	// HalfLifeDays controls adaptive forgetting decay.
	HalfLifeDays float64
	// ForgetThreshold deletes episodic records whose decayed score falls
	// below it.
	ForgetThreshold float64
}

// DefaultConfig returns the standard consolidation parameters.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.75,
		ConfidenceThreshold: 0.8,
		HalfLifeDays:        30,
		ForgetThreshold:     0.05,
	}
}

// Recalled is one ranked recall hit from any tier.
type Recalled struct {
	Tier    string
	ID      string
	Summary string
	Score   float64
}

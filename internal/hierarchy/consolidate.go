package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/mnemex/mnemex/internal/index"
)

// ConsolidateStats reports what one consolidation pass changed.
type ConsolidateStats struct {
	PatternsCreated int
	PatternsUpdated int
	RulesCreated    int
	RulesUpdated    int
	Forgotten       int
}

// Consolidate runs the three-step consolidation pass: pattern extraction,
// rule generalization, and adaptive forgetting. The steps are independent
// and idempotent: cancelling between steps, or running the whole pass twice
// with no new episodes, leaves valid state and changes nothing the second
// time. Consolidation itself never fails on empty state; the only returned
// error is context cancellation.
func (h *Hierarchy) Consolidate(ctx context.Context) (ConsolidateStats, error) {
	var stats ConsolidateStats

	h.extractPatterns(ctx, &stats)
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	h.generalizeRules(ctx, &stats)
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	h.forget(&stats)
	return stats, nil
}

// extractPatterns groups episodic records by semantic similarity. Episodes
// already absorbed into a pattern stay put (tiering is monotonic); new
// episodes either join the pattern of their best match or seed a new group.
// Embedding outages abort extraction for this pass; the next pass retries
// with the same inputs.
func (h *Hierarchy) extractPatterns(ctx context.Context, stats *ConsolidateStats) {
	h.mu.Lock()
	defer h.mu.Unlock()

	total := len(h.episodeOrder)
	if total == 0 {
		return
	}

	for _, id := range append([]string(nil), h.episodeOrder...) {
		if _, grouped := h.memberOf[id]; grouped {
			continue
		}
		rec := h.episodes[id]

		matches, err := h.idx.SearchTiers(ctx, rec.Summary, total, index.ModeSemantic,
			[]index.Tier{index.TierEpisodic})
		if err != nil {
			if errors.Is(err, index.ErrEmptyIndex) {
				return
			}
			return // embedder unavailable; retried on the next pass
		}

		// Split matches into an existing pattern to join and fresh peers.
		joinPattern := ""
		peers := []string{id}
		for _, m := range matches {
			if m.Score < h.cfg.SimilarityThreshold || m.Ref.ID == id {
				continue
			}
			if pid, ok := h.memberOf[m.Ref.ID]; ok {
				if joinPattern == "" {
					joinPattern = pid
				}
				continue
			}
			peers = append(peers, m.Ref.ID)
		}

		switch {
		case joinPattern != "":
			p := h.patterns[joinPattern]
			p.MemberIDs = append(p.MemberIDs, id)
			p.Frequency = len(p.MemberIDs)
			p.EpisodesConsidered = total
			p.Confidence = float64(p.Frequency) / float64(total)
			p.UpdatedAt = h.now()
			h.memberOf[id] = p.ID
			stats.PatternsUpdated++

		case len(peers) >= 2:
			sort.Strings(peers)
			p := &TacticalPattern{
				ID:                 h.newID(),
				Signature:          rec.Summary,
				MemberIDs:          peers,
				Frequency:          len(peers),
				EpisodesConsidered: total,
				Confidence:         float64(len(peers)) / float64(total),
				CreatedAt:          h.now(),
				UpdatedAt:          h.now(),
			}
			if err := h.idx.Upsert(ctx, index.TierTactical, p.ID, p.Signature); err != nil {
				return // no pattern without its index entry; retried next pass
			}
			h.patterns[p.ID] = p
			for _, m := range peers {
				h.memberOf[m] = p.ID
			}
			stats.PatternsCreated++
		}
	}
}

// generalizeRules derives or refreshes a strategic rule for every tactical
// pattern whose confidence clears the threshold. Rules are never revoked:
// once generalized, knowledge only updates upward.
func (h *Hierarchy) generalizeRules(ctx context.Context, stats *ConsolidateStats) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ids := make([]string, 0, len(h.patterns))
	for id := range h.patterns {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, pid := range ids {
		p := h.patterns[pid]
		if p.Confidence < h.cfg.ConfidenceThreshold {
			continue
		}

		condition := fmt.Sprintf("situation resembles: %s", snippet(p.Signature, 120))
		consequence := fmt.Sprintf("apply the outcome observed across %d similar episodes", p.Frequency)

		if rid, ok := h.ruleFor[pid]; ok {
			r := h.rules[rid]
			if r.Confidence == p.Confidence && r.Consequence == consequence {
				continue // nothing new; keep the pass idempotent
			}
			r.Confidence = p.Confidence
			r.Condition = condition
			r.Consequence = consequence
			r.UpdatedAt = h.now()
			stats.RulesUpdated++
			continue
		}

		r := &StrategicRule{
			ID:          h.newID(),
			Condition:   condition,
			Consequence: consequence,
			Confidence:  p.Confidence,
			PatternID:   pid,
			CreatedAt:   h.now(),
			UpdatedAt:   h.now(),
		}
		if err := h.idx.Upsert(ctx, index.TierStrategic, r.ID, r.Condition); err != nil {
			continue
		}
		h.rules[r.ID] = r
		h.ruleFor[pid] = r.ID
		stats.RulesCreated++
	}
}

// forget deletes episodic records whose decayed value fell below the
// threshold. Only episodic detail decays; patterns and rules persist.
func (h *Hierarchy) forget(stats *ConsolidateStats) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	kept := h.episodeOrder[:0]
	for _, id := range h.episodeOrder {
		rec := h.episodes[id]
		if h.decayScore(*rec, now) < h.cfg.ForgetThreshold {
			delete(h.episodes, id)
			h.idx.Remove(index.TierEpisodic, id)
			stats.Forgotten++
			continue
		}
		kept = append(kept, id)
	}
	h.episodeOrder = kept
}

// decayScore is the adaptive-forgetting value of a record at the given time:
// importance * exp(-age_in_days / half_life).
func (h *Hierarchy) decayScore(rec EpisodicRecord, now time.Time) float64 {
	ageDays := rec.Age(now).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return rec.Importance * math.Exp(-ageDays/h.cfg.HalfLifeDays)
}

// snippet truncates s for use in rule text.
func snippet(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

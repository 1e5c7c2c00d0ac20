package hierarchy

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/mnemex/mnemex/internal/adapter"
	"github.com/mnemex/mnemex/internal/index"
)

type fixture struct {
	h   *Hierarchy
	idx *index.Index
	// cur is the controllable clock shared by hierarchy and index.
	cur *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cur := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ix := index.New(adapter.NewHashEmbedder(64), 0.5)
	h := New(ix, DefaultConfig())
	f := &fixture{h: h, idx: ix, cur: &cur}
	h.now = func() time.Time { return cur }
	return f
}

func (f *fixture) advance(d time.Duration) { *f.cur = f.cur.Add(d) }

func (f *fixture) record(t *testing.T, content string, importance float64) EpisodicRecord {
	t.Helper()
	rec, err := f.h.RecordEpisode(context.Background(), content, importance, nil)
	if err != nil {
		t.Fatalf("RecordEpisode(%q): %v", content, err)
	}
	return rec
}

func TestHierarchy_RecordEpisodeRegistersIndexEntry(t *testing.T) {
	f := newFixture(t)
	rec := f.record(t, "the deploy failed on staging", 0.7)

	if !f.idx.Has(index.TierEpisodic, rec.ID) {
		t.Fatal("episodic record has no index entry")
	}
	got, ok := f.h.Episode(rec.ID)
	if !ok || got.Summary != "the deploy failed on staging" {
		t.Fatalf("Episode lookup: %+v, ok=%v", got, ok)
	}
}

type embedFailer struct{}

func (embedFailer) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("embedder down")
}

func TestHierarchy_RecordEpisodeEmbedFailureLeavesNoState(t *testing.T) {
	ix := index.New(embedFailer{}, 0.5)
	h := New(ix, DefaultConfig())

	_, err := h.RecordEpisode(context.Background(), "content", 0.5, nil)
	if err == nil {
		t.Fatal("expected embed failure to surface")
	}
	if len(h.Episodes()) != 0 {
		t.Error("failed record left an episode behind")
	}
	if ix.Len() != 0 {
		t.Error("failed record left an index entry behind")
	}
}

func TestHierarchy_ConsolidateExtractsPattern(t *testing.T) {
	f := newFixture(t)

	// Identical summaries embed identically under the hash embedder, so
	// their semantic similarity is 1.0 >= the 0.75 threshold.
	f.record(t, "user asked for the weekly sales numbers", 0.6)
	f.record(t, "user asked for the weekly sales numbers", 0.6)
	f.record(t, "lunch order: two burritos", 0.4)

	stats, err := f.h.Consolidate(context.Background())
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if stats.PatternsCreated != 1 {
		t.Fatalf("patterns created: got %d, want 1", stats.PatternsCreated)
	}

	patterns := f.h.Patterns()
	if len(patterns) != 1 {
		t.Fatalf("expected exactly one pattern, got %d", len(patterns))
	}
	p := patterns[0]
	if p.Frequency != 2 || len(p.MemberIDs) != 2 {
		t.Errorf("pattern frequency: got %d (members %d), want 2", p.Frequency, len(p.MemberIDs))
	}
	if !f.idx.Has(index.TierTactical, p.ID) {
		t.Error("pattern has no tactical index entry")
	}
}

func TestHierarchy_ConsolidateGeneralizesRule(t *testing.T) {
	f := newFixture(t)
	f.record(t, "build broke after dependency bump", 0.8)
	f.record(t, "build broke after dependency bump", 0.8)

	// 2 members / 2 episodes = confidence 1.0 >= 0.8.
	if _, err := f.h.Consolidate(context.Background()); err != nil {
		t.Fatalf("Consolidate: %v", err)
	}

	rules := f.h.Rules()
	if len(rules) != 1 {
		t.Fatalf("expected one rule, got %d", len(rules))
	}
	r := rules[0]
	if r.Confidence != 1.0 {
		t.Errorf("rule confidence: got %v, want 1.0", r.Confidence)
	}
	patterns := f.h.Patterns()
	if r.PatternID != patterns[0].ID {
		t.Errorf("rule not linked to its pattern")
	}
	if !f.idx.Has(index.TierStrategic, r.ID) {
		t.Error("rule has no strategic index entry")
	}
}

func TestHierarchy_LowConfidencePatternYieldsNoRule(t *testing.T) {
	f := newFixture(t)
	f.record(t, "retry fixed the flaky test", 0.6)
	f.record(t, "retry fixed the flaky test", 0.6)
	// Enough unrelated episodes to push confidence (2/5 = 0.4) under 0.8.
	f.record(t, "renamed the staging cluster", 0.6)
	f.record(t, "rotated the api credentials", 0.6)
	f.record(t, "archived the q2 planning doc", 0.6)

	if _, err := f.h.Consolidate(context.Background()); err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if len(f.h.Patterns()) != 1 {
		t.Fatalf("expected one pattern, got %d", len(f.h.Patterns()))
	}
	if len(f.h.Rules()) != 0 {
		t.Fatalf("expected no rules at confidence 0.4, got %d", len(f.h.Rules()))
	}
}

func TestHierarchy_AdaptiveForgetting(t *testing.T) {
	f := newFixture(t)

	old := f.record(t, "intern asked about the coffee machine", 0.1)
	f.advance(90 * 24 * time.Hour)
	fresh := f.record(t, "production database migration scheduled", 0.9)

	// score(old) = 0.1 * exp(-90/30) ≈ 0.005 < 0.05 -> forgotten.
	stats, err := f.h.Consolidate(context.Background())
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if stats.Forgotten != 1 {
		t.Fatalf("forgotten: got %d, want 1", stats.Forgotten)
	}

	if _, ok := f.h.Episode(old.ID); ok {
		t.Error("decayed episode still present")
	}
	if f.idx.Has(index.TierEpisodic, old.ID) {
		t.Error("decayed episode still indexed")
	}
	if _, ok := f.h.Episode(fresh.ID); !ok {
		t.Error("fresh episode was forgotten")
	}
}

func TestHierarchy_ForgettingSparesPatternsAndRules(t *testing.T) {
	f := newFixture(t)
	f.record(t, "nightly job timed out", 0.1)
	f.record(t, "nightly job timed out", 0.1)

	if _, err := f.h.Consolidate(context.Background()); err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if len(f.h.Patterns()) != 1 || len(f.h.Rules()) != 1 {
		t.Fatalf("setup: patterns=%d rules=%d", len(f.h.Patterns()), len(f.h.Rules()))
	}

	// Age both episodes past the forget horizon and consolidate again.
	f.advance(365 * 24 * time.Hour)
	stats, err := f.h.Consolidate(context.Background())
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if stats.Forgotten != 2 {
		t.Fatalf("forgotten: got %d, want 2", stats.Forgotten)
	}

	// Episodic detail decayed; abstracted knowledge persists.
	if len(f.h.Episodes()) != 0 {
		t.Error("episodes should be gone")
	}
	if len(f.h.Patterns()) != 1 || len(f.h.Rules()) != 1 {
		t.Errorf("patterns/rules deleted by forgetting: patterns=%d rules=%d",
			len(f.h.Patterns()), len(f.h.Rules()))
	}
}

func TestHierarchy_ConsolidateIdempotent(t *testing.T) {
	f := newFixture(t)
	f.record(t, "cache invalidation bug in checkout", 0.7)
	f.record(t, "cache invalidation bug in checkout", 0.7)
	f.record(t, "standup moved to 9am", 0.5)

	if _, err := f.h.Consolidate(context.Background()); err != nil {
		t.Fatalf("first Consolidate: %v", err)
	}
	before := f.h.Dump()

	stats, err := f.h.Consolidate(context.Background())
	if err != nil {
		t.Fatalf("second Consolidate: %v", err)
	}
	if stats != (ConsolidateStats{}) {
		t.Errorf("second pass changed state: %+v", stats)
	}
	if !reflect.DeepEqual(f.h.Dump(), before) {
		t.Error("state differs after idempotent pass")
	}
}

func TestHierarchy_ConsolidateIdempotentAfterForgetting(t *testing.T) {
	f := newFixture(t)

	// A decayed episode plus a sub-threshold pattern: two similar fresh
	// episodes against three total give confidence 2/3 < 0.8, so no rule.
	f.record(t, "intern asked about the coffee machine", 0.1)
	f.advance(90 * 24 * time.Hour)
	f.record(t, "payment webhook retries need backoff", 0.7)
	f.record(t, "payment webhook retries need backoff", 0.7)

	stats, err := f.h.Consolidate(context.Background())
	if err != nil {
		t.Fatalf("first Consolidate: %v", err)
	}
	if stats.PatternsCreated != 1 || stats.Forgotten != 1 || stats.RulesCreated != 0 {
		t.Fatalf("first pass: %+v", stats)
	}
	before := f.h.Dump()

	// The forgotten episode shrank the store to 2, but the pattern keeps
	// its original denominator: confidence must not drift up to 2/2 and
	// mint a rule on a pass that saw nothing new.
	stats, err = f.h.Consolidate(context.Background())
	if err != nil {
		t.Fatalf("second Consolidate: %v", err)
	}
	if stats != (ConsolidateStats{}) {
		t.Errorf("second pass changed state: %+v", stats)
	}
	if len(f.h.Rules()) != 0 {
		t.Errorf("forgetting inflated pattern confidence into %d rule(s)", len(f.h.Rules()))
	}
	if !reflect.DeepEqual(f.h.Dump(), before) {
		t.Error("state differs after idempotent pass")
	}

	p := f.h.Patterns()[0]
	if p.EpisodesConsidered != 3 {
		t.Errorf("pattern denominator: got %d, want 3", p.EpisodesConsidered)
	}
}

func TestHierarchy_ConsolidateEmptyIsNoOp(t *testing.T) {
	f := newFixture(t)
	stats, err := f.h.Consolidate(context.Background())
	if err != nil {
		t.Fatalf("Consolidate on empty hierarchy: %v", err)
	}
	if stats != (ConsolidateStats{}) {
		t.Errorf("empty consolidate produced changes: %+v", stats)
	}
}

func TestHierarchy_MonotonicTiering(t *testing.T) {
	f := newFixture(t)
	a := f.record(t, "reindex fixed the search latency", 0.6)
	b := f.record(t, "reindex fixed the search latency", 0.6)

	if _, err := f.h.Consolidate(context.Background()); err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	p := f.h.Patterns()[0]

	// A third similar episode joins the existing pattern rather than
	// seeding a new one; the original members never regroup.
	c := f.record(t, "reindex fixed the search latency", 0.6)
	if _, err := f.h.Consolidate(context.Background()); err != nil {
		t.Fatalf("Consolidate: %v", err)
	}

	patterns := f.h.Patterns()
	if len(patterns) != 1 {
		t.Fatalf("expected the pattern to grow, got %d patterns", len(patterns))
	}
	if patterns[0].ID != p.ID || patterns[0].Frequency != 3 {
		t.Errorf("pattern: got id=%s freq=%d, want id=%s freq=3",
			patterns[0].ID, patterns[0].Frequency, p.ID)
	}
	for _, id := range []string{a.ID, b.ID, c.ID} {
		if f.h.memberOf[id] != p.ID {
			t.Errorf("episode %s not a member of the original pattern", id)
		}
	}
}

func TestHierarchy_RecallPrefersCompressedTiers(t *testing.T) {
	f := newFixture(t)
	f.record(t, "invoice export needs the finance role", 0.7)
	f.record(t, "invoice export needs the finance role", 0.7)

	if _, err := f.h.Consolidate(context.Background()); err != nil {
		t.Fatalf("Consolidate: %v", err)
	}

	// The pattern signature equals the episode summaries, so the episodic
	// and tactical entries score identically for this query; tier priority
	// must put tactical first.
	got, err := f.h.Recall(context.Background(), "invoice export needs the finance role", 3)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(got) < 2 {
		t.Fatalf("expected multiple recalls, got %d", len(got))
	}
	if got[0].Tier != string(index.TierTactical) {
		t.Errorf("first recall tier: got %s, want tactical", got[0].Tier)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Errorf("recall not ordered by score at %d", i)
		}
	}
}

func TestHierarchy_RecallTierPreferenceSurvivesManyTies(t *testing.T) {
	f := newFixture(t)

	// Four identical episodes plus the pattern they consolidate into: five
	// entries score identically for this query. The tactical hit must win
	// even with k=1, however large the tie group is.
	for i := 0; i < 4; i++ {
		f.record(t, "checkout retries exhaust the payment gateway", 0.6)
	}
	if _, err := f.h.Consolidate(context.Background()); err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if len(f.h.Patterns()) != 1 {
		t.Fatalf("setup: patterns=%d", len(f.h.Patterns()))
	}

	got, err := f.h.Recall(context.Background(), "checkout retries exhaust the payment gateway", 1)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one recall, got %d", len(got))
	}
	if got[0].Tier != string(index.TierTactical) {
		t.Errorf("recall tier: got %s, want tactical", got[0].Tier)
	}
}

func TestHierarchy_RecallEmptyIndex(t *testing.T) {
	f := newFixture(t)
	_, err := f.h.Recall(context.Background(), "anything", 3)
	if !errors.Is(err, index.ErrEmptyIndex) {
		t.Fatalf("expected ErrEmptyIndex, got %v", err)
	}
}

func TestHierarchy_DumpRestoreRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.record(t, "alpha event", 0.5)
	f.record(t, "alpha event", 0.5)
	if _, err := f.h.Consolidate(context.Background()); err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	st := f.h.Dump()

	ix := index.New(adapter.NewHashEmbedder(64), 0.5)
	ix.Restore(f.idx.Entries())
	restored := New(ix, DefaultConfig())
	restored.Restore(st)

	if !reflect.DeepEqual(restored.Dump(), st) {
		t.Fatal("state mismatch after restore")
	}

	// Weak references survive: a third matching episode still joins the
	// restored pattern.
	if _, err := restored.RecordEpisode(context.Background(), "alpha event", 0.5, nil); err != nil {
		t.Fatalf("RecordEpisode: %v", err)
	}
	if _, err := restored.Consolidate(context.Background()); err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if len(restored.Patterns()) != 1 {
		t.Fatalf("expected one pattern after restore+join, got %d", len(restored.Patterns()))
	}
	if restored.Patterns()[0].Frequency != 3 {
		t.Errorf("restored pattern frequency: got %d, want 3", restored.Patterns()[0].Frequency)
	}
}

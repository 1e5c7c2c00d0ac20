package index

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/mnemex/mnemex/internal/adapter"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	ix := New(adapter.NewHashEmbedder(64), 0.5)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	// Each upsert gets a strictly later created time so tie-breaks are exercised
	// deliberately, not by accident.
	n := 0
	ix.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
	return ix
}

func mustUpsert(t *testing.T, ix *Index, tier Tier, id, content string) {
	t.Helper()
	if err := ix.Upsert(context.Background(), tier, id, content); err != nil {
		t.Fatalf("Upsert(%s/%s): %v", tier, id, err)
	}
}

func TestIndex_SemanticExactMatch(t *testing.T) {
	ix := newTestIndex(t)
	mustUpsert(t, ix, TierBuffer, "1", "cat")
	mustUpsert(t, ix, TierBuffer, "2", "quarterly revenue report")

	results, err := ix.Search(context.Background(), "cat", 1, ModeSemantic)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Ref.ID != "1" {
		t.Errorf("expected exact match first, got %s", results[0].Ref.ID)
	}
	if results[0].Score < 0.999 {
		t.Errorf("identical text should score 1.0, got %v", results[0].Score)
	}
}

func TestIndex_LexicalOverlap(t *testing.T) {
	ix := New(nil, 0.5) // no embedder: lexical only
	mustUpsert(t, ix, TierEpisodic, "a", "the deploy failed on staging")
	mustUpsert(t, ix, TierEpisodic, "b", "lunch menu for tuesday")

	results, err := ix.Search(context.Background(), "why did the deploy fail on staging", 2, ModeLexical)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if results[0].Ref.ID != "a" {
		t.Errorf("expected overlapping record first, got %s", results[0].Ref.ID)
	}
	if results[0].Score <= results[1].Score {
		t.Errorf("scores not ordered: %v vs %v", results[0].Score, results[1].Score)
	}
	for _, r := range results {
		if r.Score < 0 || r.Score > 1 {
			t.Errorf("score out of [0,1]: %v", r.Score)
		}
	}
}

func TestIndex_LexicalModeNeverEmbeds(t *testing.T) {
	ix := New(embedFailer{}, 0.5)
	// Upsert would fail with this embedder, so restore entries directly.
	ix.Restore([]Entry{{
		Ref:       Ref{Tier: TierBuffer, ID: "1"},
		Terms:     termFreq("hello world"),
		CreatedAt: time.Now(),
	}})

	if _, err := ix.Search(context.Background(), "hello", 1, ModeLexical); err != nil {
		t.Fatalf("lexical search must not call the embedder: %v", err)
	}
}

type embedFailer struct{}

func (embedFailer) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("embedder down")
}

func TestIndex_FailedUpsertLeavesNoEntry(t *testing.T) {
	ix := New(embedFailer{}, 0.5)

	err := ix.Upsert(context.Background(), TierBuffer, "1", "content")
	if err == nil {
		t.Fatal("expected embed failure to surface")
	}
	if ix.Len() != 0 {
		t.Fatalf("failed upsert left %d entries", ix.Len())
	}
}

func TestIndex_EmptyIndexError(t *testing.T) {
	ix := newTestIndex(t)

	_, err := ix.Search(context.Background(), "anything", 5, ModeHybrid)
	if !errors.Is(err, ErrEmptyIndex) {
		t.Fatalf("expected ErrEmptyIndex, got %v", err)
	}

	// Fewer entries than k is not an error.
	mustUpsert(t, ix, TierBuffer, "1", "only one")
	results, err := ix.Search(context.Background(), "one", 10, ModeHybrid)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected 1 result, got %d", len(results))
	}
}

func TestIndex_RemoveIsSynchronous(t *testing.T) {
	ix := newTestIndex(t)
	mustUpsert(t, ix, TierEpisodic, "x", "some episode")

	if !ix.Has(TierEpisodic, "x") {
		t.Fatal("entry missing after upsert")
	}
	ix.Remove(TierEpisodic, "x")
	if ix.Has(TierEpisodic, "x") {
		t.Fatal("entry still present after remove")
	}
	// Same ID in a different tier is a distinct entry.
	mustUpsert(t, ix, TierEpisodic, "y", "episode")
	mustUpsert(t, ix, TierTactical, "y", "pattern")
	ix.Remove(TierEpisodic, "y")
	if !ix.Has(TierTactical, "y") {
		t.Error("removing episodic entry deleted the tactical entry")
	}
}

func TestIndex_DeterministicTieBreak(t *testing.T) {
	ix := New(nil, 0.5)
	created := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	// Identical terms and created time: ordering must fall back to ID asc.
	ix.Restore([]Entry{
		{Ref: Ref{Tier: TierEpisodic, ID: "b"}, Terms: termFreq("same text"), CreatedAt: created},
		{Ref: Ref{Tier: TierEpisodic, ID: "a"}, Terms: termFreq("same text"), CreatedAt: created},
		{Ref: Ref{Tier: TierEpisodic, ID: "c"}, Terms: termFreq("same text"), CreatedAt: created.Add(time.Second)},
	})

	var first []Result
	for i := 0; i < 5; i++ {
		results, err := ix.Search(context.Background(), "same text", 3, ModeLexical)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if first == nil {
			first = results
			// Newest created first, then ID asc among equals.
			want := []string{"c", "a", "b"}
			for j, id := range want {
				if results[j].Ref.ID != id {
					t.Fatalf("order: got %v, want %v at %d", results[j].Ref.ID, id, j)
				}
			}
			continue
		}
		if !reflect.DeepEqual(results, first) {
			t.Fatalf("search not deterministic: %+v vs %+v", results, first)
		}
	}
}

func TestIndex_HybridBlend(t *testing.T) {
	ix := New(adapter.NewHashEmbedder(64), 0.5)
	mustUpsert(t, ix, TierBuffer, "1", "cat")

	// Against the exact same text: semantic = 1, lexical = 1, hybrid = 1.
	results, err := ix.Search(context.Background(), "cat", 1, ModeHybrid)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if results[0].Score < 0.999 {
		t.Errorf("hybrid score for identical text: got %v", results[0].Score)
	}

	// Alpha=1 means pure semantic; a lexically-overlapping but
	// differently-embedded query scores ~0 under the hash embedder.
	ixSem := New(adapter.NewHashEmbedder(64), 1.0)
	if err := ixSem.Upsert(context.Background(), TierBuffer, "1", "cat"); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	semResults, err := ixSem.Search(context.Background(), "cat cat", 1, ModeHybrid)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	lexResults, _ := ixSem.Search(context.Background(), "cat cat", 1, ModeLexical)
	if semResults[0].Score >= lexResults[0].Score {
		t.Errorf("expected hash-embedder semantic score (%v) below lexical (%v)",
			semResults[0].Score, lexResults[0].Score)
	}
}

func TestCosine_ZeroNorm(t *testing.T) {
	if got := cosineDense([]float32{0, 0, 0}, []float32{1, 2, 3}); got != 0 {
		t.Errorf("zero-norm cosine: got %v, want 0", got)
	}
	if got := cosineTF(nil, map[string]float64{"a": 1}); got != 0 {
		t.Errorf("empty TF cosine: got %v, want 0", got)
	}
	if got := cosineDense([]float32{1, 0}, []float32{1, 0, 0}); got != 0 {
		t.Errorf("mismatched lengths: got %v, want 0", got)
	}
}

func TestTermFreq_Normalised(t *testing.T) {
	tf := termFreq("Cat cat DOG!")
	if math.Abs(tf["cat"]-2.0/3) > 1e-9 {
		t.Errorf("cat frequency: got %v", tf["cat"])
	}
	if math.Abs(tf["dog"]-1.0/3) > 1e-9 {
		t.Errorf("dog frequency: got %v", tf["dog"])
	}
}

func TestIndex_EntriesRoundTrip(t *testing.T) {
	ix := newTestIndex(t)
	mustUpsert(t, ix, TierBuffer, "1", "alpha")
	mustUpsert(t, ix, TierEpisodic, "e1", "beta")

	dump := ix.Entries()
	restored := New(adapter.NewHashEmbedder(64), 0.5)
	restored.Restore(dump)

	if restored.Len() != 2 {
		t.Fatalf("restored %d entries, want 2", restored.Len())
	}
	if !reflect.DeepEqual(restored.Entries(), dump) {
		t.Fatal("entries mismatch after round trip")
	}
}

package session

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/mnemex/mnemex/internal/adapter"
	"github.com/mnemex/mnemex/internal/buffer"
	"github.com/mnemex/mnemex/internal/config"
	"github.com/mnemex/mnemex/internal/db"
	"github.com/mnemex/mnemex/internal/index"
	"github.com/mnemex/mnemex/internal/store"
	"github.com/mnemex/mnemex/internal/token"
)

// fakeGenerator records the last request and returns a canned reply.
type fakeGenerator struct {
	lastReq adapter.GenerateRequest
	reply   string
	err     error
}

func (f *fakeGenerator) Generate(_ context.Context, req adapter.GenerateRequest) (string, error) {
	f.lastReq = req
	return f.reply, f.err
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Buffer.MaxTokens = 100
	cfg.Buffer.Policy = "fifo"
	return cfg
}

func newTestSession(t *testing.T, cfg config.Config, opts Options) *Session {
	t.Helper()
	if opts.Counter == nil {
		opts.Counter = token.Approx{}
	}
	s, err := New(cfg, adapter.NewHashEmbedder(0), opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestObserve_IndexesBufferItem(t *testing.T) {
	s := newTestSession(t, testConfig(), Options{})

	id, err := s.Observe(context.Background(), "deployed the staging cluster", 0.6)
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if s.Buffer().Len() != 1 {
		t.Errorf("buffer len: got %d", s.Buffer().Len())
	}
	if !s.Index().Has(index.TierBuffer, "1") {
		t.Error("buffer item not indexed")
	}
	if id != 1 {
		t.Errorf("id: got %d", id)
	}
}

func TestObserve_EvictionMigratesToEpisodic(t *testing.T) {
	s := newTestSession(t, testConfig(), Options{})
	ctx := context.Background()

	// Budget is 90 tokens (100 * 0.9); each 160-byte note costs 40.
	note := strings.Repeat("a", 160)
	for i := 0; i < 3; i++ {
		if _, err := s.Observe(ctx, note+string(rune('0'+i)), 0.5); err != nil {
			t.Fatalf("Observe %d: %v", i, err)
		}
	}

	if got := len(s.Hierarchy().Episodes()); got != 1 {
		t.Fatalf("episodes: got %d, want 1", got)
	}
	ep := s.Hierarchy().Episodes()[0]
	if ep.Summary != note+"0" {
		t.Errorf("wrong item migrated: %q", ep.Summary[:10])
	}
	if len(ep.SourceIDs) != 1 || ep.SourceIDs[0] != 1 {
		t.Errorf("source ids: %v", ep.SourceIDs)
	}
	// The evicted item's buffer-tier entry is gone; an episodic one exists.
	if s.Index().Has(index.TierBuffer, "1") {
		t.Error("stale buffer index entry survived eviction")
	}
	if !s.Index().Has(index.TierEpisodic, ep.ID) {
		t.Error("episode not indexed")
	}
}

func TestSearch_FindsBufferContent(t *testing.T) {
	s := newTestSession(t, testConfig(), Options{})
	ctx := context.Background()

	if _, err := s.Observe(ctx, "postgres connection pooling settings", 0.5); err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if _, err := s.Observe(ctx, "weekly planning notes", 0.5); err != nil {
		t.Fatalf("Observe: %v", err)
	}

	hits, err := s.Search(ctx, "postgres connection pooling settings", 1, index.ModeLexical)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].Summary != "postgres connection pooling settings" {
		t.Errorf("hits: %+v", hits)
	}
	if hits[0].Tier != string(index.TierBuffer) {
		t.Errorf("tier: %s", hits[0].Tier)
	}
}

func TestAsk_AssemblesPromptAndObservesExchange(t *testing.T) {
	gen := &fakeGenerator{reply: "use a connection pool of 10"}
	s := newTestSession(t, testConfig(), Options{Generator: gen})
	ctx := context.Background()

	if _, err := s.Observe(ctx, "postgres keeps dropping connections", 0.8); err != nil {
		t.Fatalf("Observe: %v", err)
	}

	answer, err := s.Ask(ctx, "how should I configure postgres?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if answer != "use a connection pool of 10" {
		t.Errorf("answer: %q", answer)
	}
	if !strings.Contains(gen.lastReq.SystemPrompt, "postgres keeps dropping connections") {
		t.Errorf("working context missing from system prompt:\n%s", gen.lastReq.SystemPrompt)
	}
	// The exchange itself lands in working memory.
	found := false
	for _, it := range s.Buffer().Snapshot() {
		if strings.Contains(it.Content, "use a connection pool of 10") {
			found = true
		}
	}
	if !found {
		t.Error("exchange not observed into buffer")
	}
}

func TestAsk_NoGenerator(t *testing.T) {
	s := newTestSession(t, testConfig(), Options{})
	if _, err := s.Ask(context.Background(), "anything"); err == nil {
		t.Fatal("expected error without a generator")
	}
}

func TestEndAndRestore(t *testing.T) {
	database, err := db.Open(filepath.Join(t.TempDir(), "mem.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer database.Close()
	st := store.New(database)
	cfg := testConfig()
	ctx := context.Background()

	s := newTestSession(t, cfg, Options{Store: st})
	if _, err := s.Observe(ctx, "release v2 shipped on friday", 0.9); err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if err := s.End(ctx); err != nil {
		t.Fatalf("End: %v", err)
	}

	restored := newTestSession(t, cfg, Options{Store: st})
	if restored.Buffer().Len() != 1 {
		t.Fatalf("restored buffer len: %d", restored.Buffer().Len())
	}
	hits, err := restored.Search(ctx, "release v2 shipped on friday", 1, index.ModeHybrid)
	if err != nil {
		t.Fatalf("Search after restore: %v", err)
	}
	if len(hits) != 1 || hits[0].Summary != "release v2 shipped on friday" {
		t.Errorf("restored hits: %+v", hits)
	}
}

func TestRestore_ShrunkenBudgetDropsOrphanedIndexEntries(t *testing.T) {
	database, err := db.Open(filepath.Join(t.TempDir(), "mem.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer database.Close()
	st := store.New(database)
	ctx := context.Background()

	cfg := testConfig()
	cfg.Buffer.MaxTokens = 400
	s := newTestSession(t, cfg, Options{Store: st})

	// Three 41-token items fit the 360-token budget comfortably.
	note := strings.Repeat("a", 160)
	for i := 0; i < 3; i++ {
		if _, err := s.Observe(ctx, note+string(rune('0'+i)), 0.5); err != nil {
			t.Fatalf("Observe %d: %v", i, err)
		}
	}
	if err := s.End(ctx); err != nil {
		t.Fatalf("End: %v", err)
	}

	// Reload under a budget (90 tokens) that fits only the first two items.
	cfg.Buffer.MaxTokens = 100
	restored := newTestSession(t, cfg, Options{Store: st})

	if got := restored.Buffer().Len(); got != 2 {
		t.Fatalf("restored buffer len: got %d, want 2", got)
	}
	// Every index entry in the buffer tier must have a live owner.
	for _, it := range restored.Buffer().Snapshot() {
		if !restored.Index().Has(index.TierBuffer, strconv.FormatUint(it.ID, 10)) {
			t.Errorf("live item %d lost its index entry", it.ID)
		}
	}
	if restored.Index().Has(index.TierBuffer, "3") {
		t.Error("skipped item 3 left a dangling index entry")
	}
}

func TestLLMCompressor_FallsBackOnUselessOutput(t *testing.T) {
	counter := token.Approx{}
	long := strings.Repeat("detail ", 50)

	// Model echoes something longer than the input.
	gen := &fakeGenerator{reply: long + long}
	c := NewLLMCompressor(gen, counter)
	content, cost, err := c.Compress(context.Background(), long, 10)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if content != long || cost != counter.Count(long) {
		t.Error("expected original content back when model output is not smaller")
	}
}

func TestLLMCompressor_TruncatesOvershoot(t *testing.T) {
	counter := token.Approx{}
	long := strings.Repeat("x", 400) // 100 tokens

	gen := &fakeGenerator{reply: strings.Repeat("y", 200)} // 50 tokens, target 20
	c := NewLLMCompressor(gen, counter)
	content, cost, err := c.Compress(context.Background(), long, 20)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if cost > 20 {
		t.Errorf("cost %d exceeds target", cost)
	}
	if !strings.HasPrefix(content, "y") {
		t.Errorf("content: %q", content[:5])
	}
}

func TestBuildSystemPrompt_RespectsBudget(t *testing.T) {
	counter := token.Approx{}

	items := make([]buffer.Item, 40)
	for i := range items {
		items[i] = buffer.Item{ID: uint64(i + 1), Content: strings.Repeat("note ", 10)}
	}
	prompt := buildSystemPrompt(nil, items, 60, counter)
	if got := counter.Count(prompt); got > 60 {
		t.Errorf("prompt is %d tokens, budget 60", got)
	}
	if !strings.Contains(prompt, "persistent memory") {
		t.Error("preamble missing")
	}
}

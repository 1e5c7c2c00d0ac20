// Package store persists the full memory state (buffer items, hierarchy
// records, index entries) to SQLite and restores it on startup.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mnemex/mnemex/internal/buffer"
	"github.com/mnemex/mnemex/internal/db"
	"github.com/mnemex/mnemex/internal/hierarchy"
	"github.com/mnemex/mnemex/internal/index"
)

// Snapshot is everything a memory instance needs to resume where it left off.
type Snapshot struct {
	Items     []buffer.Item
	Hierarchy hierarchy.State
	Entries   []index.Entry
}

// Store reads and writes snapshots against one database.
type Store struct {
	db *db.DB
}

// New creates a Store over an open database.
func New(database *db.DB) *Store {
	return &Store{db: database}
}

// Save replaces the persisted state with the snapshot, atomically. A crash
// mid-save leaves the previous snapshot intact.
func (s *Store) Save(snap Snapshot) error {
	tx, err := s.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	if err := saveItems(tx, snap.Items); err != nil {
		return err
	}
	if err := saveHierarchy(tx, snap.Hierarchy); err != nil {
		return err
	}
	if err := saveEntries(tx, snap.Entries); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}

	// The vec0 mirror lives outside the transaction: virtual tables are not
	// transactional, and losing the mirror only costs a rebuild.
	s.mirrorVectors(snap.Entries)
	return nil
}

// Load reads the persisted snapshot. An empty database yields an empty
// snapshot, not an error.
func (s *Store) Load() (Snapshot, error) {
	var snap Snapshot
	var err error

	if snap.Items, err = loadItems(s.db.Conn()); err != nil {
		return Snapshot{}, err
	}
	if snap.Hierarchy, err = loadHierarchy(s.db.Conn()); err != nil {
		return Snapshot{}, err
	}
	if snap.Entries, err = loadEntries(s.db.Conn()); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// ---- Buffer items ----

func saveItems(tx *sql.Tx, items []buffer.Item) error {
	if _, err := tx.Exec(`DELETE FROM items`); err != nil {
		return fmt.Errorf("store: clear items: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO items
		(id, content, token_cost, importance, access_count, last_access, created_at, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare items: %w", err)
	}
	defer stmt.Close()

	for _, it := range items {
		_, err := stmt.Exec(it.ID, it.Content, it.TokenCost, it.Importance,
			it.AccessCnt, it.LastAccess, it.CreatedAt, it.Seq)
		if err != nil {
			return fmt.Errorf("store: insert item %d: %w", it.ID, err)
		}
	}
	return nil
}

func loadItems(conn *sql.DB) ([]buffer.Item, error) {
	rows, err := conn.Query(`SELECT id, content, token_cost, importance,
		access_count, last_access, created_at, seq FROM items ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("store: query items: %w", err)
	}
	defer rows.Close()

	var items []buffer.Item
	for rows.Next() {
		var it buffer.Item
		if err := rows.Scan(&it.ID, &it.Content, &it.TokenCost, &it.Importance,
			&it.AccessCnt, &it.LastAccess, &it.CreatedAt, &it.Seq); err != nil {
			return nil, fmt.Errorf("store: scan item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// ---- Hierarchy ----

func saveHierarchy(tx *sql.Tx, st hierarchy.State) error {
	for _, table := range []string{"episodes", "patterns", "rules"} {
		if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
			return fmt.Errorf("store: clear %s: %w", table, err)
		}
	}

	for _, ep := range st.Episodes {
		sources, err := json.Marshal(ep.SourceIDs)
		if err != nil {
			return fmt.Errorf("store: marshal sources for %s: %w", ep.ID, err)
		}
		_, err = tx.Exec(`INSERT INTO episodes
			(id, summary, source_ids, importance, created_at) VALUES (?, ?, ?, ?, ?)`,
			ep.ID, ep.Summary, string(sources), ep.Importance, ep.CreatedAt)
		if err != nil {
			return fmt.Errorf("store: insert episode %s: %w", ep.ID, err)
		}
	}

	for _, p := range st.Patterns {
		members, err := json.Marshal(p.MemberIDs)
		if err != nil {
			return fmt.Errorf("store: marshal members for %s: %w", p.ID, err)
		}
		_, err = tx.Exec(`INSERT INTO patterns
			(id, signature, member_ids, frequency, episodes_considered, confidence, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.Signature, string(members), p.Frequency, p.EpisodesConsidered, p.Confidence, p.CreatedAt, p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("store: insert pattern %s: %w", p.ID, err)
		}
	}

	for _, r := range st.Rules {
		_, err := tx.Exec(`INSERT INTO rules
			(id, condition, consequence, confidence, pattern_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.Condition, r.Consequence, r.Confidence, r.PatternID, r.CreatedAt, r.UpdatedAt)
		if err != nil {
			return fmt.Errorf("store: insert rule %s: %w", r.ID, err)
		}
	}
	return nil
}

func loadHierarchy(conn *sql.DB) (hierarchy.State, error) {
	var st hierarchy.State

	rows, err := conn.Query(`SELECT id, summary, source_ids, importance, created_at
		FROM episodes ORDER BY id`)
	if err != nil {
		return st, fmt.Errorf("store: query episodes: %w", err)
	}
	for rows.Next() {
		var ep hierarchy.EpisodicRecord
		var sources string
		if err := rows.Scan(&ep.ID, &ep.Summary, &sources, &ep.Importance, &ep.CreatedAt); err != nil {
			rows.Close()
			return st, fmt.Errorf("store: scan episode: %w", err)
		}
		if err := json.Unmarshal([]byte(sources), &ep.SourceIDs); err != nil {
			rows.Close()
			return st, fmt.Errorf("store: decode sources for %s: %w", ep.ID, err)
		}
		st.Episodes = append(st.Episodes, ep)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return st, err
	}
	rows.Close()

	rows, err = conn.Query(`SELECT id, signature, member_ids, frequency, episodes_considered,
		confidence, created_at, updated_at FROM patterns ORDER BY id`)
	if err != nil {
		return st, fmt.Errorf("store: query patterns: %w", err)
	}
	for rows.Next() {
		var p hierarchy.TacticalPattern
		var members string
		if err := rows.Scan(&p.ID, &p.Signature, &members, &p.Frequency, &p.EpisodesConsidered,
			&p.Confidence, &p.CreatedAt, &p.UpdatedAt); err != nil {
			rows.Close()
			return st, fmt.Errorf("store: scan pattern: %w", err)
		}
		if err := json.Unmarshal([]byte(members), &p.MemberIDs); err != nil {
			rows.Close()
			return st, fmt.Errorf("store: decode members for %s: %w", p.ID, err)
		}
		st.Patterns = append(st.Patterns, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return st, err
	}
	rows.Close()

	rows, err = conn.Query(`SELECT id, condition, consequence, confidence, pattern_id,
		created_at, updated_at FROM rules ORDER BY id`)
	if err != nil {
		return st, fmt.Errorf("store: query rules: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var r hierarchy.StrategicRule
		if err := rows.Scan(&r.ID, &r.Condition, &r.Consequence, &r.Confidence,
			&r.PatternID, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return st, fmt.Errorf("store: scan rule: %w", err)
		}
		st.Rules = append(st.Rules, r)
	}
	return st, rows.Err()
}

// ---- Index entries ----

func saveEntries(tx *sql.Tx, entries []index.Entry) error {
	if _, err := tx.Exec(`DELETE FROM entries`); err != nil {
		return fmt.Errorf("store: clear entries: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO entries
		(tier, owner_id, terms, embedding, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare entries: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		terms, err := json.Marshal(e.Terms)
		if err != nil {
			return fmt.Errorf("store: marshal terms for %s/%s: %w", e.Ref.Tier, e.Ref.ID, err)
		}
		_, err = stmt.Exec(string(e.Ref.Tier), e.Ref.ID, string(terms),
			float32SliceToBlob(e.Embedding), e.CreatedAt)
		if err != nil {
			return fmt.Errorf("store: insert entry %s/%s: %w", e.Ref.Tier, e.Ref.ID, err)
		}
	}
	return nil
}

func loadEntries(conn *sql.DB) ([]index.Entry, error) {
	rows, err := conn.Query(`SELECT tier, owner_id, terms, embedding, created_at
		FROM entries ORDER BY tier, owner_id`)
	if err != nil {
		return nil, fmt.Errorf("store: query entries: %w", err)
	}
	defer rows.Close()

	var entries []index.Entry
	for rows.Next() {
		var tier, ownerID, terms string
		var blob []byte
		var created time.Time
		if err := rows.Scan(&tier, &ownerID, &terms, &blob, &created); err != nil {
			return nil, fmt.Errorf("store: scan entry: %w", err)
		}

		e := index.Entry{
			Ref:       index.Ref{Tier: index.Tier(tier), ID: ownerID},
			CreatedAt: created,
		}
		if err := json.Unmarshal([]byte(terms), &e.Terms); err != nil {
			return nil, fmt.Errorf("store: decode terms for %s/%s: %w", tier, ownerID, err)
		}
		if e.Embedding, err = blobToFloat32Slice(blob); err != nil {
			return nil, fmt.Errorf("store: decode embedding for %s/%s: %w", tier, ownerID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// mirrorVectors rewrites the vec0 virtual table from the snapshot's
// embeddings. Errors are swallowed: the mirror is an acceleration structure,
// the entries table remains the source of truth.
func (s *Store) mirrorVectors(entries []index.Entry) {
	conn := s.db.Conn()
	if _, err := conn.Exec(`DELETE FROM vec_entries`); err != nil {
		return
	}
	for _, e := range entries {
		if len(e.Embedding) != db.DefaultEmbeddingDimension {
			continue
		}
		key := string(e.Ref.Tier) + "/" + e.Ref.ID
		_, _ = conn.Exec(`INSERT INTO vec_entries (key, embedding) VALUES (?, ?)`,
			key, float32SliceToBlob(e.Embedding))
	}
}

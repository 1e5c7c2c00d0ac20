// Package buffer implements the bounded working-context buffer: an ordered,
// token-budgeted set of items with pluggable eviction policies.
package buffer

import (
	"errors"
	"fmt"
	"time"
)

// Item is one unit of working memory held by a Buffer.
type Item struct {
	ID         uint64    `json:"id"`
	Content    string    `json:"content"`
	TokenCost  int       `json:"token_cost"`
	Importance float64   `json:"importance"`
	AccessCnt  int       `json:"access_count"`
	LastAccess time.Time `json:"last_access"`
	CreatedAt  time.Time `json:"created_at"`
	// Seq is the insertion sequence number, used for FIFO ordering and
	// tie-breaking. It survives compression and re-scoring.
	Seq uint64 `json:"seq"`
}

// ErrNotFound is returned when an operation references an ID with no live item.
var ErrNotFound = errors.New("buffer: item not found")

// CapacityError reports an item whose token cost can never fit the budget,
// even with every other item evicted.
type CapacityError struct {
	TokenCost int
	Budget    int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("buffer: item of %d tokens can never fit budget of %d tokens", e.TokenCost, e.Budget)
}

// ABOUTME: Store errors and row types shared by the SQLite implementation
// ABOUTME: Defines TurnRecord, the raw shape of a persisted turn row

package store

import (
	"errors"
	"time"
)

// ErrNotFound indicates the requested record doesn't exist
var ErrNotFound = errors.New("record not found")

// TurnRecord is one persisted utterance row. A logical conversation turn
// produces two records sharing a turn_id: the user's input and the
// assistant's response.
type TurnRecord struct {
	ID        string
	SessionID string
	UserID    string
	TurnID    string
	Role      string // "user" or "assistant"
	Content   string
	Intent    string
	CreatedAt time.Time
}

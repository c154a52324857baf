// ABOUTME: SQLite implementation of turn, snapshot, and summary persistence
// ABOUTME: Uses modernc.org/sqlite with automatic schema creation and WAL mode

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/2389/aide-runtime/internal/conversation"
	"github.com/2389/aide-runtime/internal/persist"
)

// SQLiteStore persists turns, snapshots, and session summaries in SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS turns (
			id            TEXT PRIMARY KEY,
			session_id    TEXT NOT NULL,
			user_id       TEXT NOT NULL,
			turn_id       TEXT NOT NULL,
			role          TEXT NOT NULL,
			content       TEXT NOT NULL,
			intent        TEXT,
			metadata_json TEXT,
			created_at    TEXT NOT NULL,

			CHECK (role IN ('user', 'assistant'))
		);

		CREATE INDEX IF NOT EXISTS idx_turns_session
			ON turns(session_id, created_at);

		CREATE INDEX IF NOT EXISTS idx_turns_user
			ON turns(user_id);

		CREATE TABLE IF NOT EXISTS snapshots (
			id            TEXT PRIMARY KEY,
			session_id    TEXT NOT NULL,
			user_id       TEXT NOT NULL,
			reason        TEXT NOT NULL,
			snapshot_json BLOB NOT NULL,
			created_at    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_snapshots_session
			ON snapshots(session_id, created_at DESC);

		CREATE TABLE IF NOT EXISTS session_summaries (
			id           TEXT PRIMARY KEY,
			user_id      TEXT NOT NULL,
			session_id   TEXT NOT NULL,
			topic        TEXT,
			device_type  TEXT,
			turn_count   INTEGER NOT NULL DEFAULT 0,
			satisfaction REAL NOT NULL DEFAULT 0,
			ended_at     TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_summaries_user
			ON session_summaries(user_id, ended_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// SaveTurn persists a single utterance. The metadata map's "turn_id" and
// "intent" keys are promoted to columns so history can be reassembled
// into logical turns; the full map is kept as JSON alongside.
func (s *SQLiteStore) SaveTurn(ctx context.Context, sessionID, userID, role, content string, metadata map[string]any) error {
	turnID, _ := metadata["turn_id"].(string)
	intent, _ := metadata["intent"].(string)

	var metaJSON []byte
	if len(metadata) > 0 {
		var err error
		metaJSON, err = json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("encoding turn metadata: %w", err)
		}
	}

	query := `
		INSERT INTO turns (id, session_id, user_id, turn_id, role, content, intent, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		uuid.New().String(),
		sessionID,
		userID,
		turnID,
		role,
		content,
		nullString(intent),
		nullString(string(metaJSON)),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting turn: %w", err)
	}

	s.logger.Debug("saved turn", "session_id", sessionID, "role", role)
	return nil
}

// nullString returns nil for empty strings, otherwise the string
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// LoadHistory reassembles the most recent logical turns for a session in
// chronological order. Rows sharing a turn_id merge into one turn: the
// user row becomes the input, the assistant row the response. If limit is
// 0 or negative, all turns are returned.
func (s *SQLiteStore) LoadHistory(ctx context.Context, sessionID string, limit int) ([]conversation.Turn, error) {
	query := `
		SELECT turn_id, role, content, intent, created_at
		FROM turns
		WHERE session_id = ?
		ORDER BY created_at ASC, rowid ASC
	`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying turns: %w", err)
	}
	defer rows.Close()

	var turns []conversation.Turn
	index := make(map[string]int) // turn_id -> position in turns

	for rows.Next() {
		var turnID, role, content, createdAtStr string
		var intent sql.NullString

		if err := rows.Scan(&turnID, &role, &content, &intent, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning turn row: %w", err)
		}

		i, ok := index[turnID]
		if !ok {
			ts, err := time.Parse(time.RFC3339Nano, createdAtStr)
			if err != nil {
				return nil, fmt.Errorf("parsing turn created_at: %w", err)
			}
			turns = append(turns, conversation.Turn{
				TurnID:    turnID,
				Intent:    intent.String,
				Timestamp: ts,
				Success:   true,
			})
			i = len(turns) - 1
			index[turnID] = i
		}

		switch role {
		case "user":
			turns[i].UserInput = content
		case "assistant":
			turns[i].SystemResponse = content
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating turn rows: %w", err)
	}

	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns, nil
}

// SaveSnapshot persists a flow snapshot as a JSON blob keyed by ID
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap *persist.Snapshot) error {
	blob, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	query := `
		INSERT OR REPLACE INTO snapshots (id, session_id, user_id, reason, snapshot_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		snap.ID,
		snap.SessionID,
		snap.UserID,
		snap.Reason,
		blob,
		snap.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}

	s.logger.Debug("saved snapshot", "id", snap.ID, "session_id", snap.SessionID, "reason", snap.Reason)
	return nil
}

// GetSnapshot retrieves a snapshot by ID.
// Returns ErrNotFound if no snapshot exists with that ID.
func (s *SQLiteStore) GetSnapshot(ctx context.Context, id string) (*persist.Snapshot, error) {
	query := `SELECT snapshot_json FROM snapshots WHERE id = ?`

	var blob []byte
	err := s.db.QueryRowContext(ctx, query, id).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying snapshot: %w", err)
	}

	var snap persist.Snapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return &snap, nil
}

// LatestSnapshot retrieves the most recent snapshot for a session.
// Returns ErrNotFound if the session has no snapshots.
func (s *SQLiteStore) LatestSnapshot(ctx context.Context, sessionID string) (*persist.Snapshot, error) {
	query := `
		SELECT snapshot_json
		FROM snapshots
		WHERE session_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`

	var blob []byte
	err := s.db.QueryRowContext(ctx, query, sessionID).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest snapshot: %w", err)
	}

	var snap persist.Snapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return &snap, nil
}

// SaveSummary records a completed session for pattern tracking
func (s *SQLiteStore) SaveSummary(ctx context.Context, userID string, summary *persist.SessionSummary) error {
	query := `
		INSERT INTO session_summaries (id, user_id, session_id, topic, device_type, turn_count, satisfaction, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		uuid.New().String(),
		userID,
		summary.SessionID,
		nullString(summary.Topic),
		nullString(summary.DeviceType),
		summary.TurnCount,
		summary.Satisfaction,
		summary.EndedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting session summary: %w", err)
	}

	s.logger.Debug("saved session summary", "user_id", userID, "session_id", summary.SessionID)
	return nil
}

// UserSummaries returns a user's recorded session summaries, most recent
// first. If limit is 0 or negative, a default of 50 is used.
func (s *SQLiteStore) UserSummaries(ctx context.Context, userID string, limit int) ([]*persist.SessionSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT session_id, topic, device_type, turn_count, satisfaction, ended_at
		FROM session_summaries
		WHERE user_id = ?
		ORDER BY ended_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying session summaries: %w", err)
	}
	defer rows.Close()

	var summaries []*persist.SessionSummary
	for rows.Next() {
		var sum persist.SessionSummary
		var topic, deviceType sql.NullString
		var endedAtStr string

		if err := rows.Scan(&sum.SessionID, &topic, &deviceType, &sum.TurnCount, &sum.Satisfaction, &endedAtStr); err != nil {
			return nil, fmt.Errorf("scanning summary row: %w", err)
		}

		sum.Topic = topic.String
		sum.DeviceType = deviceType.String
		sum.EndedAt, err = time.Parse(time.RFC3339Nano, endedAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing summary ended_at: %w", err)
		}
		summaries = append(summaries, &sum)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating summary rows: %w", err)
	}
	return summaries, nil
}

// Ensure SQLiteStore satisfies the persistence manager's backend contract
var _ persist.Store = (*SQLiteStore)(nil)

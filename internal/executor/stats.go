package executor

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"rice/internal/logging"
)

// ExecutionRecord is one persisted tool invocation outcome.
type ExecutionRecord struct {
	ID            int64
	CorrelationID string
	ToolID        string
	Principal     string
	Success       bool
	ErrorKind     string
	DurationMs    int64
	Attempts      int
	CreatedAt     time.Time
}

// StatsStore persists execution records to SQLite for later inspection
// (debugging, tool reliability reporting).
type StatsStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewStatsStore opens (creating if needed) a stats database at dbPath.
func NewStatsStore(dbPath string) (*StatsStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create stats directory: %w", err)
	}

	db, err := sql.Open(sqliteDriver, dbPath)
	if err != nil {
		return nil, fmt.Errorf("open stats database: %w", err)
	}

	s := &StatsStore{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *StatsStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tool_executions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		correlation_id TEXT NOT NULL,
		tool_id TEXT NOT NULL,
		principal TEXT,
		success INTEGER NOT NULL,
		error_kind TEXT,
		duration_ms INTEGER NOT NULL,
		attempts INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_tool_executions_tool ON tool_executions(tool_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record persists one execution outcome.
func (s *StatsStore) Record(rec ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	successInt := 0
	if rec.Success {
		successInt = 1
	}

	_, err := s.db.Exec(`
		INSERT INTO tool_executions
		(correlation_id, tool_id, principal, success, error_kind, duration_ms, attempts)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.CorrelationID, rec.ToolID, rec.Principal, successInt, rec.ErrorKind, rec.DurationMs, rec.Attempts,
	)
	if err != nil {
		logging.Get(logging.CategoryExecutor).Error("failed to record execution stats for %s: %v", rec.ToolID, err)
		return err
	}
	return nil
}

// ToolStats summarizes a tool's recorded executions.
type ToolStats struct {
	ToolID        string
	TotalCalls    int
	SuccessCount  int
	FailureCount  int
	AvgDurationMs float64
}

// StatsFor summarizes all recorded executions for toolID.
func (s *StatsStore) StatsFor(toolID string) (ToolStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(success), 0),
		       COALESCE(AVG(duration_ms), 0)
		FROM tool_executions WHERE tool_id = ?`, toolID)

	var total, successes int
	var avg float64
	if err := row.Scan(&total, &successes, &avg); err != nil {
		return ToolStats{}, err
	}
	return ToolStats{
		ToolID:        toolID,
		TotalCalls:    total,
		SuccessCount:  successes,
		FailureCount:  total - successes,
		AvgDurationMs: avg,
	}, nil
}

// Close releases the underlying database handle.
func (s *StatsStore) Close() error {
	return s.db.Close()
}

// Package telemetry records per-request translation telemetry to SQLite,
// adapted from the teacher's routing-event recorder (§4.12).
package telemetry

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

// Collector records translation events and exposes aggregate stats via
// SQLite.
type Collector struct {
	db *sql.DB
}

// Event captures telemetry for a single gateway request.
type Event struct {
	ID               string
	Protocol         string
	Model            string
	Streaming        bool
	Vision           bool
	LatencyMs        int
	PromptTokens     int
	CompletionTokens int
	ErrorKind        string
}

// Stats holds aggregate telemetry.
type Stats struct {
	TotalRequests int
	ByProtocol    map[string]int
	ByModel       map[string]int
	StreamingCount int
	VisionCount    int
	ErrorCount     int
}

// NewCollector opens (or creates) the SQLite database at dbPath and ensures
// the events table exists.
func NewCollector(dbPath string) (*Collector, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		protocol TEXT,
		model TEXT,
		streaming INTEGER,
		vision INTEGER,
		latency_ms INTEGER,
		prompt_tokens INTEGER,
		completion_tokens INTEGER,
		error_kind TEXT
	)`)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Collector{db: db}, nil
}

// Close releases the database connection.
func (c *Collector) Close() error {
	return c.db.Close()
}

// Record inserts a new telemetry event.
func (c *Collector) Record(e Event) error {
	_, err := c.db.Exec(
		`INSERT INTO events
			(id, protocol, model, streaming, vision, latency_ms, prompt_tokens, completion_tokens, error_kind)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Protocol, e.Model, boolToInt(e.Streaming), boolToInt(e.Vision),
		e.LatencyMs, e.PromptTokens, e.CompletionTokens, e.ErrorKind,
	)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// GetStats returns aggregate stats. When protocolFilter is non-empty,
// TotalRequests is scoped to that protocol only; the breakdowns always
// cover all events.
func (c *Collector) GetStats(protocolFilter string) (*Stats, error) {
	stats := &Stats{
		ByProtocol: make(map[string]int),
		ByModel:    make(map[string]int),
	}

	query := `SELECT COUNT(*) FROM events`
	args := []interface{}{}
	if protocolFilter != "" {
		query += ` WHERE protocol = ?`
		args = append(args, protocolFilter)
	}
	if err := c.db.QueryRow(query, args...).Scan(&stats.TotalRequests); err != nil {
		return nil, err
	}

	rows, err := c.db.Query(`SELECT protocol, COUNT(*) FROM events GROUP BY protocol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var protocol string
		var count int
		if err := rows.Scan(&protocol, &count); err != nil {
			return nil, err
		}
		stats.ByProtocol[protocol] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows2, err := c.db.Query(`SELECT model, COUNT(*) FROM events GROUP BY model`)
	if err != nil {
		return nil, err
	}
	defer rows2.Close()
	for rows2.Next() {
		var model string
		var count int
		if err := rows2.Scan(&model, &count); err != nil {
			return nil, err
		}
		stats.ByModel[model] = count
	}
	if err := rows2.Err(); err != nil {
		return nil, err
	}

	if err := c.db.QueryRow(`SELECT COUNT(*) FROM events WHERE streaming = 1`).Scan(&stats.StreamingCount); err != nil {
		return nil, err
	}
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM events WHERE vision = 1`).Scan(&stats.VisionCount); err != nil {
		return nil, err
	}
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM events WHERE error_kind != ''`).Scan(&stats.ErrorCount); err != nil {
		return nil, err
	}

	return stats, nil
}

package db

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/hpungsan/lspgate/internal/errors"
)

// Event is one recorded gate decision.
type Event struct {
	ID             string  `json:"id"`
	Kind           string  `json:"kind"`
	SessionID      *string `json:"session_id,omitempty"`
	SessionClaimed *string `json:"session_claimed,omitempty"`
	SessionMatched bool    `json:"session_matched"`
	SizeBytes      int     `json:"size_bytes"`
	TokensEstimate int     `json:"tokens_estimate"`
	ItemCount      int     `json:"item_count"`
	MaxDepth       int     `json:"max_depth"`
	Buffered       bool    `json:"buffered"`
	BufferID       *string `json:"buffer_id,omitempty"`
	PreviewTokens  int     `json:"preview_tokens"`
	CreatedAt      int64   `json:"created_at"`
}

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	Kind         string
	BufferedOnly bool
	Limit        int
	Offset       int
}

// KindSummary aggregates events for one tool kind.
type KindSummary struct {
	Kind      string `json:"kind"`
	Calls     int    `json:"calls"`
	Buffered  int    `json:"buffered"`
	MaxTokens int    `json:"max_tokens"`
	AvgTokens int    `json:"avg_tokens"`
}

const eventColumns = `id, kind, session_id, session_claimed, session_matched,
			size_bytes, tokens_estimate, item_count, max_depth,
			buffered, buffer_id, preview_tokens, created_at`

// Insert stores a gate event.
func Insert(db *sql.DB, e *Event) error {
	query := `
		INSERT INTO gate_events (` + eventColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.Exec(query,
		e.ID, e.Kind, toNullString(e.SessionID), toNullString(e.SessionClaimed), e.SessionMatched,
		e.SizeBytes, e.TokensEstimate, e.ItemCount, e.MaxDepth,
		e.Buffered, toNullString(e.BufferID), e.PreviewTokens, e.CreatedAt,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetByBufferID returns the event that created a buffer.
func GetByBufferID(db *sql.DB, bufferID string) (*Event, error) {
	query := `SELECT ` + eventColumns + ` FROM gate_events WHERE buffer_id = ? LIMIT 1`

	e, err := scanEvent(db.QueryRow(query, bufferID))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(bufferID)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return e, nil
}

// List returns events newest first.
func List(db *sql.DB, f ListFilter) ([]Event, error) {
	var (
		where []string
		args  []any
	)
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, f.Kind)
	}
	if f.BufferedOnly {
		where = append(where, "buffered = 1")
	}

	query := `SELECT ` + eventColumns + ` FROM gate_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	// id breaks ties; ULIDs sort by creation time
	query += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
		if f.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", f.Offset)
		}
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return events, nil
}

// Summarize aggregates events per kind, ordered by kind.
func Summarize(db *sql.DB) ([]KindSummary, error) {
	query := `
		SELECT kind, COUNT(*), COALESCE(SUM(buffered), 0),
			COALESCE(MAX(tokens_estimate), 0), CAST(COALESCE(AVG(tokens_estimate), 0) AS INTEGER)
		FROM gate_events
		GROUP BY kind
		ORDER BY kind
	`
	rows, err := db.Query(query)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	summaries := []KindSummary{}
	for rows.Next() {
		var s KindSummary
		if err := rows.Scan(&s.Kind, &s.Calls, &s.Buffered, &s.MaxTokens, &s.AvgTokens); err != nil {
			return nil, errors.NewInternal(err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return summaries, nil
}

// Prune deletes events created before the cutoff (unix seconds) and
// returns how many were removed.
func Prune(db *sql.DB, before int64) (int64, error) {
	result, err := db.Exec(`DELETE FROM gate_events WHERE created_at < ?`, before)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanEvent scans a single row into an Event struct.
func scanEvent(row scanner) (*Event, error) {
	var (
		e              Event
		sessionID      sql.NullString
		sessionClaimed sql.NullString
		bufferID       sql.NullString
	)

	err := row.Scan(
		&e.ID, &e.Kind, &sessionID, &sessionClaimed, &e.SessionMatched,
		&e.SizeBytes, &e.TokensEstimate, &e.ItemCount, &e.MaxDepth,
		&e.Buffered, &bufferID, &e.PreviewTokens, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.SessionID = fromNullString(sessionID)
	e.SessionClaimed = fromNullString(sessionClaimed)
	e.BufferID = fromNullString(bufferID)
	return &e, nil
}

// toNullString converts a *string to sql.NullString.
func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// fromNullString converts a sql.NullString to *string.
func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

// optional returns nil for the empty string.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

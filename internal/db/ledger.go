package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/lspgate/internal/gate"
)

// Ledger records gate decisions. It implements gate.Recorder.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// NewLedger returns a ledger writing to db.
func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// Record stores ev. The context only gates the call; writes are short.
func (l *Ledger) Record(ctx context.Context, ev gate.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return Insert(l.db, &Event{
		ID:             ulid.Make().String(),
		Kind:           string(ev.Kind),
		SessionID:      optional(ev.Session.SessionID),
		SessionClaimed: optional(ev.Session.Claimed),
		SessionMatched: ev.Session.Matched,
		SizeBytes:      ev.Metrics.SizeBytes,
		TokensEstimate: ev.Metrics.TokenEstimate,
		ItemCount:      ev.Metrics.ItemCount,
		MaxDepth:       ev.Metrics.MaxDepth,
		Buffered:       ev.Buffered,
		BufferID:       optional(ev.BufferID),
		PreviewTokens:  ev.PreviewTokens,
		CreatedAt:      l.now().Unix(),
	})
}

// Recent returns the newest events, at most limit of them.
func (l *Ledger) Recent(limit int) ([]Event, error) {
	return List(l.db, ListFilter{Limit: limit})
}

package db

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/hpungsan/lspgate/internal/errors"
	"github.com/hpungsan/lspgate/internal/estimate"
	"github.com/hpungsan/lspgate/internal/gate"
	"github.com/hpungsan/lspgate/internal/session"
	"github.com/hpungsan/lspgate/internal/tool"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// newTestEvent creates an event with default values for testing.
func newTestEvent(id, kind string, tokens int, createdAt int64) *Event {
	return &Event{
		ID:             id,
		Kind:           kind,
		SizeBytes:      tokens * 4,
		TokensEstimate: tokens,
		ItemCount:      1,
		MaxDepth:       1,
		CreatedAt:      createdAt,
	}
}

func stringPtr(s string) *string {
	return &s
}

func TestInsertAndGetByBufferID(t *testing.T) {
	db := openTestDB(t)

	e := newTestEvent("01EVENT1", "document_symbols", 9000, 100)
	e.Buffered = true
	e.BufferID = stringPtr("01BUFFER1")
	e.PreviewTokens = 800
	e.SessionID = stringPtr("sess-1")
	e.SessionClaimed = stringPtr("sess-1")
	e.SessionMatched = true

	if err := Insert(db, e); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := GetByBufferID(db, "01BUFFER1")
	if err != nil {
		t.Fatalf("GetByBufferID failed: %v", err)
	}
	if got.ID != e.ID || got.Kind != e.Kind {
		t.Errorf("got %s/%s, want %s/%s", got.ID, got.Kind, e.ID, e.Kind)
	}
	if !got.Buffered || got.PreviewTokens != 800 || got.TokensEstimate != 9000 {
		t.Errorf("got buffered=%v preview=%d tokens=%d", got.Buffered, got.PreviewTokens, got.TokensEstimate)
	}
	if got.SessionID == nil || *got.SessionID != "sess-1" || !got.SessionMatched {
		t.Errorf("session fields not round-tripped: %+v", got)
	}
}

func TestGetByBufferID_NotFound(t *testing.T) {
	db := openTestDB(t)

	_, err := GetByBufferID(db, "missing")
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("error = %v, want NOT_FOUND", err)
	}
}

func TestInsert_NullableFields(t *testing.T) {
	db := openTestDB(t)

	if err := Insert(db, newTestEvent("01EVENT1", "hover", 10, 100)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	events, err := List(db, ListFilter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	e := events[0]
	if e.SessionID != nil || e.SessionClaimed != nil || e.BufferID != nil {
		t.Errorf("nullable fields should be nil: %+v", e)
	}
}

func TestInsert_DuplicateID(t *testing.T) {
	db := openTestDB(t)

	if err := Insert(db, newTestEvent("01DUP", "hover", 10, 100)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	err := Insert(db, newTestEvent("01DUP", "hover", 10, 100))
	if !errors.Is(err, errors.ErrInternal) {
		t.Errorf("error = %v, want INTERNAL", err)
	}
}

func TestList_OrderAndFilters(t *testing.T) {
	db := openTestDB(t)

	events := []*Event{
		newTestEvent("01A", "hover", 10, 100),
		newTestEvent("01B", "references", 5000, 200),
		newTestEvent("01C", "references", 20, 300),
		newTestEvent("01D", "text_search", 7000, 400),
	}
	events[1].Buffered = true
	events[1].BufferID = stringPtr("buf-b")
	events[3].Buffered = true
	events[3].BufferID = stringPtr("buf-d")
	for _, e := range events {
		if err := Insert(db, e); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	tests := []struct {
		name   string
		filter ListFilter
		want   []string
	}{
		{"all newest first", ListFilter{}, []string{"01D", "01C", "01B", "01A"}},
		{"by kind", ListFilter{Kind: "references"}, []string{"01C", "01B"}},
		{"buffered only", ListFilter{BufferedOnly: true}, []string{"01D", "01B"}},
		{"limit", ListFilter{Limit: 2}, []string{"01D", "01C"}},
		{"limit offset", ListFilter{Limit: 2, Offset: 2}, []string{"01B", "01A"}},
		{"no match", ListFilter{Kind: "rename"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := List(db, tt.filter)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			ids := make([]string, 0, len(got))
			for _, e := range got {
				ids = append(ids, e.ID)
			}
			if len(ids) != len(tt.want) {
				t.Fatalf("ids = %v, want %v", ids, tt.want)
			}
			for i := range ids {
				if ids[i] != tt.want[i] {
					t.Errorf("ids = %v, want %v", ids, tt.want)
					break
				}
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	db := openTestDB(t)

	for _, e := range []*Event{
		newTestEvent("01A", "references", 100, 1),
		newTestEvent("01B", "references", 5000, 2),
		newTestEvent("01C", "hover", 30, 3),
	} {
		if e.TokensEstimate > 2500 {
			e.Buffered = true
		}
		if err := Insert(db, e); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	got, err := Summarize(db)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(summaries) = %d, want 2", len(got))
	}
	if got[0].Kind != "hover" || got[0].Calls != 1 || got[0].Buffered != 0 {
		t.Errorf("hover summary = %+v", got[0])
	}
	refs := got[1]
	if refs.Kind != "references" || refs.Calls != 2 || refs.Buffered != 1 || refs.MaxTokens != 5000 || refs.AvgTokens != 2550 {
		t.Errorf("references summary = %+v", refs)
	}
}

func TestPrune(t *testing.T) {
	db := openTestDB(t)

	for _, e := range []*Event{
		newTestEvent("01A", "hover", 1, 100),
		newTestEvent("01B", "hover", 1, 200),
		newTestEvent("01C", "hover", 1, 300),
	} {
		if err := Insert(db, e); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	n, err := Prune(db, 250)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if n != 2 {
		t.Errorf("pruned = %d, want 2", n)
	}
	left, _ := List(db, ListFilter{})
	if len(left) != 1 || left[0].ID != "01C" {
		t.Errorf("remaining = %+v", left)
	}
}

func TestLedger_Record(t *testing.T) {
	db := openTestDB(t)
	ledger := NewLedger(db)
	ledger.now = func() time.Time { return time.Unix(1700000000, 0) }

	var _ gate.Recorder = ledger

	err := ledger.Record(context.Background(), gate.Event{
		Kind: tool.DocumentSymbols,
		Session: session.Resolution{
			SessionID: "live",
			Claimed:   "stale",
			Matched:   false,
		},
		Metrics:       estimate.Metrics{SizeBytes: 40000, TokenEstimate: 10000, MaxDepth: 6, ItemCount: 300},
		Buffered:      true,
		BufferID:      "01BUF",
		PreviewTokens: 900,
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := ledger.Record(context.Background(), gate.Event{Kind: tool.Hover}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	recent, err := ledger.Recent(10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("len(recent) = %d, want 2", len(recent))
	}

	buffered, err := GetByBufferID(db, "01BUF")
	if err != nil {
		t.Fatalf("GetByBufferID failed: %v", err)
	}
	if buffered.Kind != "document_symbols" || buffered.MaxDepth != 6 || buffered.ItemCount != 300 {
		t.Errorf("buffered event = %+v", buffered)
	}
	if buffered.SessionClaimed == nil || *buffered.SessionClaimed != "stale" || buffered.SessionMatched {
		t.Errorf("session fields = %+v", buffered)
	}
	if buffered.CreatedAt != 1700000000 {
		t.Errorf("CreatedAt = %d, want 1700000000", buffered.CreatedAt)
	}
}

func TestLedger_RecordCanceled(t *testing.T) {
	ledger := NewLedger(openTestDB(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := ledger.Record(ctx, gate.Event{Kind: tool.Hover}); err == nil {
		t.Fatal("Record with canceled context should fail")
	}
}

package buffer

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/lspgate/internal/errors"
	"github.com/hpungsan/lspgate/internal/estimate"
)

// Defaults.
const (
	DefaultTTL               = 60 * time.Second
	DefaultCleanupInterval   = 10 * time.Second
	DefaultCompressThreshold = 64 * 1024
)

// Options configures a Store. Zero values take the defaults.
type Options struct {
	TTL             time.Duration
	CleanupInterval time.Duration

	// CompressThreshold is the payload size at which entries are held
	// zstd-compressed. Negative disables compression.
	CompressThreshold int

	Now    func() time.Time
	Logger *slog.Logger
}

// Stats summarizes the live entries.
type Stats struct {
	ActiveBuffers int `json:"activeBuffers"`
	TotalSize     int `json:"totalSize"`
	StoredSize    int `json:"storedSize"`

	// OldestBuffer is the age in milliseconds of the oldest live entry.
	OldestBuffer *int64 `json:"oldestBuffer,omitempty"`
}

type entry struct {
	data          []byte
	compressed    bool
	createdAt     time.Time
	sizeBytes     int
	tokenEstimate int
}

// Store holds oversized payloads for a bounded time.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry

	ttl               time.Duration
	interval          time.Duration
	compressThreshold int
	now               func() time.Time
	logger            *slog.Logger
}

// NewStore creates an empty store.
func NewStore(opts Options) *Store {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = DefaultCleanupInterval
	}
	if opts.CleanupInterval > opts.TTL {
		opts.CleanupInterval = opts.TTL
	}
	if opts.CompressThreshold == 0 {
		opts.CompressThreshold = DefaultCompressThreshold
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		entries:           make(map[string]*entry),
		ttl:               opts.TTL,
		interval:          opts.CleanupInterval,
		compressThreshold: opts.CompressThreshold,
		now:               opts.Now,
		logger:            opts.Logger,
	}
}

// TTL returns the retention window of every entry.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Put serializes payload and stores it under a fresh id.
func (s *Store) Put(payload any) (string, error) {
	data, err := estimate.Canonical(payload)
	if err != nil {
		return "", errors.NewInvalidRequest("payload is not serializable: " + err.Error())
	}
	return s.PutEncoded(data, estimate.Measure(payload, data)), nil
}

// PutEncoded stores canonical JSON bytes the caller already holds. The
// store takes ownership of data.
func (s *Store) PutEncoded(data []byte, m estimate.Metrics) string {
	e := &entry{
		data:          data,
		createdAt:     s.now(),
		sizeBytes:     len(data),
		tokenEstimate: m.TokenEstimate,
	}
	if s.compressThreshold > 0 && len(data) >= s.compressThreshold {
		e.data = compress(data)
		e.compressed = true
	}

	id := ulid.Make().String()

	s.mu.Lock()
	s.entries[id] = e
	s.mu.Unlock()

	s.logger.Debug("buffer stored",
		"buffer_id", id,
		"size_bytes", e.sizeBytes,
		"stored_bytes", len(e.data),
		"token_estimate", e.tokenEstimate,
	)
	return id
}

// Get returns the payload stored under id. Unknown and expired ids both
// yield NOT_FOUND. Reads never extend the TTL or remove the entry.
func (s *Store) Get(id string) (json.RawMessage, error) {
	now := s.now()

	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()

	if !ok || s.expired(e, now) {
		return nil, errors.NewNotFound(id)
	}
	if !e.compressed {
		return json.RawMessage(bytes.Clone(e.data)), nil
	}

	data, err := decompress(e.data, e.sizeBytes)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return json.RawMessage(data), nil
}

// Stats reports the live entries only.
func (s *Store) Stats() Stats {
	now := s.now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var st Stats
	var oldest time.Time
	for _, e := range s.entries {
		if s.expired(e, now) {
			continue
		}
		st.ActiveBuffers++
		st.TotalSize += e.sizeBytes
		st.StoredSize += len(e.data)
		if oldest.IsZero() || e.createdAt.Before(oldest) {
			oldest = e.createdAt
		}
	}
	if st.ActiveBuffers > 0 {
		age := now.Sub(oldest).Milliseconds()
		st.OldestBuffer = &age
	}
	return st
}

// Sweep removes expired entries and returns how many were removed.
func (s *Store) Sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, e := range s.entries {
		if s.expired(e, now) {
			delete(s.entries, id)
			n++
		}
	}
	return n
}

// Run sweeps on the cleanup interval until ctx is done.
func (s *Store) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Debug("buffers evicted", "count", n)
			}
		}
	}
}

func (s *Store) expired(e *entry, now time.Time) bool {
	return now.Sub(e.createdAt) > s.ttl
}

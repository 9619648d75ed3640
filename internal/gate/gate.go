package gate

import (
	"context"
	"log/slog"

	"github.com/hpungsan/lspgate/internal/buffer"
	"github.com/hpungsan/lspgate/internal/errors"
	"github.com/hpungsan/lspgate/internal/estimate"
	"github.com/hpungsan/lspgate/internal/preview"
	"github.com/hpungsan/lspgate/internal/session"
	"github.com/hpungsan/lspgate/internal/tool"
)

// DefaultBudgetTokens is the token budget for a single response.
const DefaultBudgetTokens = 2500

// Options configures a Gate. Zero values take the defaults.
type Options struct {
	BudgetTokens int
	Limits       preview.Limits

	// MinDepth is the shallowest tree depth the gate falls back to before
	// it starts dropping items.
	MinDepth int

	Recorder Recorder
	Logger   *slog.Logger
}

// Event describes one gate decision.
type Event struct {
	Kind          tool.Kind
	Session       session.Resolution
	Metrics       estimate.Metrics
	Buffered      bool
	BufferID      string
	PreviewTokens int
}

// Recorder receives gate decisions. Record failures are logged, never
// returned to the caller.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// Outcome is either a direct result or an envelope, never both.
type Outcome struct {
	Direct   any
	Envelope *Envelope
	Metrics  estimate.Metrics

	// Text is the canonical serialization of Value, the exact bytes the
	// budget was checked against. Deliver these rather than re-encoding.
	Text []byte
}

// Value returns whichever of Direct or Envelope is set.
func (o *Outcome) Value() any {
	if o.Envelope != nil {
		return o.Envelope
	}
	return o.Direct
}

// Gate keeps every response within the token budget, buffering the full
// result when it does not fit.
type Gate struct {
	store    *buffer.Store
	budget   int
	limits   preview.Limits
	minDepth int
	recorder Recorder
	logger   *slog.Logger
}

// New creates a gate that buffers into store.
func New(store *buffer.Store, opts Options) *Gate {
	if opts.BudgetTokens <= 0 {
		opts.BudgetTokens = DefaultBudgetTokens
	}
	defaults := preview.DefaultLimits()
	if opts.Limits.Depth <= 0 {
		opts.Limits.Depth = defaults.Depth
	}
	if opts.Limits.Items <= 0 {
		opts.Limits.Items = defaults.Items
	}
	if opts.Limits.Samples <= 0 {
		opts.Limits.Samples = defaults.Samples
	}
	opts.MinDepth = max(opts.MinDepth, preview.MinDepth)
	opts.MinDepth = min(opts.MinDepth, opts.Limits.Depth)
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Gate{
		store:    store,
		budget:   opts.BudgetTokens,
		limits:   opts.Limits,
		minDepth: opts.MinDepth,
		recorder: opts.Recorder,
		logger:   opts.Logger,
	}
}

// Budget returns the token budget.
func (g *Gate) Budget() int {
	return g.budget
}

// Apply returns raw unchanged when its estimate fits the budget. Otherwise
// it buffers raw and returns an envelope whose own estimate fits.
func (g *Gate) Apply(ctx context.Context, raw any, kind tool.Kind) (*Outcome, error) {
	data, err := estimate.Canonical(raw)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	m := estimate.Measure(raw, data)

	ev := Event{Kind: kind, Metrics: m}
	if r, ok := session.ResolutionFrom(ctx); ok {
		ev.Session = r
	}

	if m.TokenEstimate <= g.budget {
		g.record(ctx, ev)
		return &Outcome{Direct: raw, Metrics: m, Text: data}, nil
	}

	// The store owns data from here on
	normalized := estimate.Normalize(raw, data)
	id := g.store.PutEncoded(data, m)
	env, text, err := g.envelope(normalized, kind, m, id)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	tokens := estimate.Tokens(len(text))

	ev.Buffered = true
	ev.BufferID = id
	ev.PreviewTokens = tokens
	g.record(ctx, ev)

	g.logger.Info("response buffered",
		"kind", kind,
		"buffer_id", id,
		"tokens", m.TokenEstimate,
		"items", m.ItemCount,
		"preview_tokens", tokens,
	)
	return &Outcome{Envelope: env, Metrics: m, Text: text}, nil
}

// envelope builds the smallest-effort envelope that fits the budget: the
// configured limits first, then shallower trees down to the minimum depth,
// then fewer items down to none. It returns the envelope with its
// canonical serialization.
func (g *Gate) envelope(raw any, kind tool.Kind, m estimate.Metrics, id string) (*Envelope, []byte, error) {
	limits := g.limits

	for {
		env := g.build(raw, kind, m, id, limits)
		text, err := estimate.Canonical(env)
		if err != nil {
			return nil, nil, err
		}
		if estimate.Tokens(len(text)) <= g.budget {
			return env, text, nil
		}

		switch {
		case kind.Shape() == tool.ShapeTree && limits.Depth > g.minDepth:
			limits.Depth--
		case limits.Items > 0:
			limits.Items /= 2
		case limits.Samples > 0:
			limits.Samples--
		default:
			return g.fallback(env, kind, limits)
		}
	}
}

// fallback strips the preview once no limit is left to reduce. Grouped
// previews keep their total and lose only the per-category counts.
func (g *Gate) fallback(env *Envelope, kind tool.Kind, limits preview.Limits) (*Envelope, []byte, error) {
	if grp := env.Preview.Grouped; grp != nil && len(grp.ByCategory) > 0 {
		env.Preview.Grouped = &preview.Grouped{
			TotalCompletions: grp.TotalCompletions,
			ByCategory:       map[string]preview.CategoryCount{},
		}
		text, err := estimate.Canonical(env)
		if err != nil {
			return nil, nil, err
		}
		if estimate.Tokens(len(text)) <= g.budget {
			return env, text, nil
		}
	}

	env.Preview = preview.Synthesize(nil, kind, limits)
	text, err := estimate.Canonical(env)
	if err != nil {
		return nil, nil, err
	}
	return env, text, nil
}

func (g *Gate) build(raw any, kind tool.Kind, m estimate.Metrics, id string, limits preview.Limits) *Envelope {
	p := preview.Synthesize(raw, kind, limits)
	return &Envelope{
		Type: EnvelopeType,
		Metadata: Metadata{
			TotalTokens:      m.TokenEstimate,
			TotalBytes:       m.SizeBytes,
			ItemCount:        m.ItemCount,
			MaxDepth:         m.MaxDepth,
			WouldExceedLimit: true,
			TruncatedAtDepth: p.TruncatedAtDepth,
		},
		Preview:     p,
		Suggestions: preview.Suggest(kind, m, p, g.store.TTL()),
		BufferID:    id,
	}
}

func (g *Gate) record(ctx context.Context, ev Event) {
	if g.recorder == nil {
		return
	}
	if err := g.recorder.Record(ctx, ev); err != nil {
		g.logger.Warn("gate event not recorded", "kind", ev.Kind, "error", err)
	}
}

package web

import (
	"database/sql"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hpungsan/lspgate/internal/buffer"
	"github.com/hpungsan/lspgate/internal/db"
	"github.com/hpungsan/lspgate/internal/errors"
	"github.com/hpungsan/lspgate/internal/gate"
	"github.com/hpungsan/lspgate/internal/mcp"
	"github.com/hpungsan/lspgate/internal/session"
)

// WorkspaceInfo describes the workspace this process serves.
type WorkspaceInfo struct {
	Name      string    `json:"workspaceName"`
	Path      string    `json:"workspacePath"`
	ID        string    `json:"workspaceId"`
	Port      int       `json:"port"`
	Version   string    `json:"version"`
	StartedAt time.Time `json:"startedAt"`
}

// Handlers contains HTTP route handlers.
type Handlers struct {
	store     *buffer.Store
	broker    *session.Broker
	gate      *gate.Gate
	db        *sql.DB // nil when the ledger is disabled
	workspace WorkspaceInfo
	renderer  *Renderer
}

// HandleSessionInfo handles GET /session-info.
func (h *Handlers) HandleSessionInfo(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, h.broker.Info())
}

// HandleWorkspaceInfo handles GET /workspace-info.
func (h *Handlers) HandleWorkspaceInfo(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, h.workspace)
}

// HandleBufferStats handles GET /buffer-stats.
func (h *Handlers) HandleBufferStats(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, h.store.Stats())
}

// HandleInstructions handles GET /instructions, as HTML unless markdown is asked for.
func (h *Handlers) HandleInstructions(w http.ResponseWriter, r *http.Request) {
	if strings.Contains(r.Header.Get("Accept"), "text/markdown") {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write([]byte(mcp.Instructions))
		return
	}
	h.renderer.renderPage(w, r, "instructions", InstructionsPageData{
		PageData:     h.renderer.page("Instructions", "instructions"),
		RenderedHTML: renderMarkdown(mcp.Instructions),
	})
}

// HandleDashboard handles GET /, showing the session, buffers and recent gate decisions.
func (h *Handlers) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	data := DashboardPageData{
		PageData:      h.renderer.page("Dashboard", "dashboard"),
		Session:       h.broker.Info(),
		Stats:         h.store.Stats(),
		BudgetTokens:  h.gate.Budget(),
		TTLSeconds:    int(h.store.TTL() / time.Second),
		LedgerEnabled: h.db != nil,
		Kind:          r.URL.Query().Get("kind"),
		BufferedOnly:  parseBoolParam(r, "buffered"),
		Limit:         parseIntParam(r, "limit", 25),
		Offset:        parseIntParam(r, "offset", 0),
	}

	if h.db != nil {
		summaries, err := db.Summarize(h.db)
		if err != nil {
			h.renderer.renderError(w, r, err)
			return
		}
		events, err := db.List(h.db, db.ListFilter{
			Kind:         data.Kind,
			BufferedOnly: data.BufferedOnly,
			Limit:        data.Limit,
			Offset:       data.Offset,
		})
		if err != nil {
			h.renderer.renderError(w, r, err)
			return
		}
		data.Summaries = summaries
		data.Events = events
	}

	// If htmx targets #events, render only the events fragment
	if r.Header.Get("HX-Target") == "events" {
		h.renderer.renderBlock(w, http.StatusOK, "dashboard", "events", data)
		return
	}
	h.renderer.renderPage(w, r, "dashboard", data)
}

// HandleEvents handles GET /events, returning gate decisions as JSON.
func (h *Handlers) HandleEvents(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		h.renderer.renderError(w, r, errors.NewUnavailable("ledger is disabled"))
		return
	}
	events, err := db.List(h.db, db.ListFilter{
		Kind:         r.URL.Query().Get("kind"),
		BufferedOnly: parseBoolParam(r, "buffered"),
		Limit:        parseIntParam(r, "limit", 50),
		Offset:       parseIntParam(r, "offset", 0),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"events": events})
}

// HandlePrune handles POST /events/prune, deleting gate decisions older than N days.
func (h *Handlers) HandlePrune(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		h.renderer.renderError(w, r, errors.NewUnavailable("ledger is disabled"))
		return
	}
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}
	if r.FormValue("confirm") != "true" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("confirm=true is required"))
		return
	}

	days := 0
	if s := r.FormValue("older_than_days"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			h.renderer.renderError(w, r, errors.NewInvalidRequest("older_than_days must be a non-negative integer"))
			return
		}
		days = n
	}

	cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour).Unix()
	if days == 0 {
		// Everything recorded up to now
		cutoff = time.Now().Unix() + 1
	}
	pruned, err := db.Prune(h.db, cutoff)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, map[string]any{"pruned": pruned})
		return
	}
	if r.Header.Get("HX-Request") == "true" {
		h.renderer.renderBlock(w, http.StatusOK, "prune", "content", PruneResultData{
			PageData: h.renderer.page("Pruned", "dashboard"),
			Pruned:   pruned,
			Message:  fmt.Sprintf("Pruned %d events", pruned),
		})
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// parseIntParam parses a non-negative integer query parameter, falling back
// to defaultVal when missing or invalid.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}

// parseBoolParam parses a boolean query parameter ("true" or "1").
func parseBoolParam(r *http.Request, name string) bool {
	s := r.URL.Query().Get(name)
	return s == "true" || s == "1"
}

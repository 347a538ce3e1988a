package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/triarbot/internal/domain"
)

// EventReader reads the durable event stream. StreamLatest returns the
// newest entries oldest first.
type EventReader interface {
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error)
	StreamLatest(ctx context.Context, stream string, count int) ([]domain.StreamMessage, error)
}

// HistoryHandler serves persisted trades and opportunities and the recent
// event stream. Any source may be nil, in which case its routes answer 503.
type HistoryHandler struct {
	trades        domain.TradeStore
	opportunities domain.OpportunityStore
	events        EventReader
	stream        string
	logger        *slog.Logger
}

// NewHistoryHandler creates a HistoryHandler.
func NewHistoryHandler(trades domain.TradeStore, opps domain.OpportunityStore, events EventReader, stream string, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{
		trades:        trades,
		opportunities: opps,
		events:        events,
		stream:        stream,
		logger:        logHandler(logger, "history"),
	}
}

// ListTrades returns the most recent trades.
// GET /api/trades?limit=N
func (h *HistoryHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	if h.trades == nil {
		writeError(w, http.StatusServiceUnavailable, "trade store not configured")
		return
	}
	trades, err := h.trades.ListRecent(r.Context(), parseLimit(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list trades failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": trades, "count": len(trades)})
}

// GetTrade returns one trade with its legs.
// GET /api/trades/{id}
func (h *HistoryHandler) GetTrade(w http.ResponseWriter, r *http.Request) {
	if h.trades == nil {
		writeError(w, http.StatusServiceUnavailable, "trade store not configured")
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing trade id")
		return
	}
	trade, err := h.trades.GetByID(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "trade not found")
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "get trade failed",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load trade")
		return
	}
	writeJSON(w, http.StatusOK, trade)
}

// ListOpportunities returns the most recent promoted opportunities.
// GET /api/opportunities?limit=N
func (h *HistoryHandler) ListOpportunities(w http.ResponseWriter, r *http.Request) {
	if h.opportunities == nil {
		writeError(w, http.StatusServiceUnavailable, "opportunity store not configured")
		return
	}
	opps, err := h.opportunities.ListRecent(r.Context(), parseLimit(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list opportunities failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list opportunities")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"opportunities": opps, "count": len(opps)})
}

// rawJSON embeds an already-encoded payload without re-quoting it.
type rawJSON []byte

func (r rawJSON) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

type eventEntry struct {
	ID    string  `json:"id"`
	Event rawJSON `json:"event"`
}

// ListEvents pages through the event stream. Without "after" it returns the
// newest entries; with it, entries strictly after that ID.
// GET /api/events?after=ID&limit=N
func (h *HistoryHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		writeError(w, http.StatusServiceUnavailable, "event stream not configured")
		return
	}
	limit := parseLimit(r)
	after := r.URL.Query().Get("after")

	var (
		msgs []domain.StreamMessage
		err  error
	)
	if after == "" {
		msgs, err = h.events.StreamLatest(r.Context(), h.stream, limit)
	} else {
		msgs, err = h.events.StreamRead(r.Context(), h.stream, after, limit)
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "read events failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to read events")
		return
	}

	out := make([]eventEntry, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, eventEntry{ID: m.ID, Event: rawJSON(m.Payload)})
	}
	next := after
	if len(out) > 0 {
		next = out[len(out)-1].ID
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out, "next": next})
}

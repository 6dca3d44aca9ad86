package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/attaboy/bankroll/internal/auth"
	"github.com/attaboy/bankroll/internal/domain"
	"github.com/attaboy/bankroll/internal/infra"
	"github.com/go-chi/chi/v5"
)

var publicAggregates = map[domain.AggregateType]bool{
	domain.AggregateWager:      true,
	domain.AggregateBankroll:   true,
	domain.AggregateVault:      true,
	domain.AggregateRandomness: true,
}

// StreamHandler pushes live events as server-sent events.
type StreamHandler struct {
	hub       *infra.EventHub
	keepAlive time.Duration
	logger    *slog.Logger
}

// NewStreamHandler creates a StreamHandler.
func NewStreamHandler(hub *infra.EventHub, keepAlive time.Duration, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{hub: hub, keepAlive: keepAlive, logger: logger}
}

// Aggregate handles GET /stream/{aggregate}/{id} for public aggregates.
func (h *StreamHandler) Aggregate(w http.ResponseWriter, r *http.Request) {
	aggregate := domain.AggregateType(chi.URLParam(r, "aggregate"))
	if !publicAggregates[aggregate] {
		RespondError(w, domain.ErrNotFound("stream", string(aggregate)))
		return
	}
	id := chi.URLParam(r, "id")
	if aggregate != domain.AggregateWager && aggregate != domain.AggregateRandomness {
		id = string(domain.NormalizeAddress(id))
	}
	h.serve(w, r, infra.Room(aggregate, id))
}

// Player handles GET /me/stream: the caller's suspension and reward events.
func (h *StreamHandler) Player(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, infra.Room(domain.AggregatePlayer, string(auth.AddressFromContext(r.Context()))))
}

func (h *StreamHandler) serve(w http.ResponseWriter, r *http.Request, room string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		RespondError(w, domain.ErrInternal("streaming unsupported", nil))
		return
	}

	sub := h.hub.Subscribe(room)
	defer h.hub.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, ": subscribed %s\n\n", room)
	flusher.Flush()
	h.logger.Debug("stream opened", "room", room, "subscriber", sub.ID)

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			h.logger.Debug("stream closed", "room", room, "subscriber", sub.ID)
			return
		case msg, ok := <-sub.Send:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

package handler

import (
	"context"
	"net/http"

	"github.com/attaboy/bankroll/internal/auth"
	"github.com/attaboy/bankroll/internal/domain"
	"github.com/attaboy/bankroll/internal/randomness"
	"github.com/attaboy/bankroll/internal/repository"
	"github.com/go-chi/chi/v5"
)

// Snapshotter persists and reads back pool states.
type Snapshotter interface {
	Snapshot(ctx context.Context) ([]domain.PoolState, error)
	Latest(ctx context.Context, token domain.Address) (*repository.Snapshot, error)
}

// KeeperHandler serves automation: randomness relaying and snapshots.
type KeeperHandler struct {
	coordinator *randomness.Coordinator
	snapshotter Snapshotter
}

// NewKeeperHandler creates a KeeperHandler. snapshotter may be nil when no
// database is configured.
func NewKeeperHandler(coordinator *randomness.Coordinator, snapshotter Snapshotter) *KeeperHandler {
	return &KeeperHandler{coordinator: coordinator, snapshotter: snapshotter}
}

// PendingRequests handles GET /keeper/randomness/pending.
func (h *KeeperHandler) PendingRequests(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, h.coordinator.Pending())
}

// Deliver handles POST /keeper/randomness/{requestID}/deliver.
func (h *KeeperHandler) Deliver(w http.ResponseWriter, r *http.Request) {
	id := domain.RequestID(chi.URLParam(r, "requestID"))
	if err := h.coordinator.Deliver(r.Context(), id); err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"request_id": id,
		"keeper":     keeperID(r),
	})
}

// DeliverDue handles POST /keeper/randomness/deliver-due.
func (h *KeeperHandler) DeliverDue(w http.ResponseWriter, r *http.Request) {
	n := h.coordinator.DeliverDue(r.Context())
	RespondJSON(w, http.StatusOK, map[string]int{"delivered": n})
}

// Snapshot handles POST /keeper/snapshot.
func (h *KeeperHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		RespondError(w, domain.ErrConflict("snapshots need a database"))
		return
	}
	pools, err := h.snapshotter.Snapshot(r.Context())
	if err != nil {
		RespondError(w, domain.ErrInternal("snapshot pools", err))
		return
	}
	RespondJSON(w, http.StatusCreated, pools)
}

// LatestSnapshot handles GET /admin/snapshots/{token}.
func (h *KeeperHandler) LatestSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		RespondError(w, domain.ErrConflict("snapshots need a database"))
		return
	}
	token, err := addressParam(r, "token")
	if err != nil {
		RespondError(w, err)
		return
	}
	snap, err := h.snapshotter.Latest(r.Context(), token)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, snap)
}

func keeperID(r *http.Request) string {
	if tok := auth.KeeperFromContext(r.Context()); tok != nil {
		return tok.Sub
	}
	return ""
}

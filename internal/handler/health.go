package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/attaboy/bankroll/internal/infra"
	"github.com/attaboy/bankroll/internal/ledger"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Auditor checks the ledger's accounting invariants.
type Auditor interface {
	Audit(ctx context.Context) ledger.AuditReport
}

// HealthHandler returns a health check endpoint. The database is checked only
// when pool is non-nil, and is reported unhealthy if a ping exceeds timeout.
func HealthHandler(pool *pgxpool.Pool, auditor Auditor, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pool != nil {
			if err := infra.HealthCheck(r.Context(), pool, timeout); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
				return
			}
		}
		if report := auditor.Audit(r.Context()); !report.AllPassed {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"status": "unhealthy",
				"error":  "ledger invariant violated",
				"audit":  report,
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
		})
	}
}

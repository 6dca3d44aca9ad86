package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// NewEvent builds an outbox draft partitioned by aggregate id.
func NewEvent(aggregate AggregateType, aggregateID string, eventType EventType, payload interface{}, at time.Time) OutboxDraft {
	body, _ := json.Marshal(payload)
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: aggregate,
		AggregateID:   aggregateID,
		EventType:     eventType,
		PartitionKey:  aggregateID,
		Headers:       json.RawMessage(`{}`),
		Payload:       body,
		OccurredAt:    at,
	}
}

// NewWagerPlacedEvent records a wager entering AwaitingRandomness.
func NewWagerPlacedEvent(w *PendingWager) OutboxDraft {
	return NewEvent(AggregateWager, string(w.RequestID), EventWagerPlaced, w, w.CreatedAt)
}

// NewWagerSettledEvent records a fulfilled wager.
func NewWagerSettledEvent(r *SettlementResult, at time.Time) OutboxDraft {
	return NewEvent(AggregateWager, string(r.RequestID), EventWagerSettled, r, at)
}

// NewWagerRefundedEvent records a timed-out wager returned to the player.
func NewWagerRefundedEvent(w *PendingWager, at time.Time) OutboxDraft {
	return NewEvent(AggregateWager, string(w.RequestID), EventWagerRefunded, map[string]interface{}{
		"game_id":    w.GameID,
		"player":     w.Player,
		"token":      w.Token,
		"amount":     w.TotalStake(),
		"request_id": w.RequestID,
	}, at)
}

// NewTransferEvent records a ledger movement of funds for a token.
func NewTransferEvent(eventType EventType, token, counterparty Address, amount Amount, at time.Time) OutboxDraft {
	return NewEvent(AggregateBankroll, string(token), eventType, map[string]interface{}{
		"token":        token,
		"counterparty": counterparty,
		"amount":       amount,
	}, at)
}

// NewSuspensionEvent records a responsible-gaming suspension change.
func NewSuspensionEvent(s Suspension, at time.Time) OutboxDraft {
	evtType := EventPlayerSuspended
	if !s.Active {
		evtType = EventPlayerUnsuspended
	}
	return NewEvent(AggregatePlayer, string(s.Player), evtType, map[string]interface{}{
		"player":    s.Player,
		"until":     s.Until,
		"permanent": s.Active && IsPermanent(s.Until),
	}, at)
}

// NewRewardEvent records play-to-earn accrual or claim.
func NewRewardEvent(eventType EventType, player Address, amount, balance Amount, at time.Time) OutboxDraft {
	return NewEvent(AggregatePlayer, string(player), eventType, map[string]interface{}{
		"player":  player,
		"amount":  amount,
		"balance": balance,
	}, at)
}

// NewVaultEvent records LP activity on a vault pool.
func NewVaultEvent(eventType EventType, token, lp Address, fields map[string]interface{}, at time.Time) OutboxDraft {
	payload := map[string]interface{}{"token": token}
	if !lp.IsZero() {
		payload["lp"] = lp
	}
	for k, v := range fields {
		payload[k] = v
	}
	return NewEvent(AggregateVault, string(token), eventType, payload, at)
}

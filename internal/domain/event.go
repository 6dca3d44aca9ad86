package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates all domain event types.
type EventType string

const (
	EventWagerPlaced         EventType = "bankroll.settlement.wager.placed"
	EventWagerSettled        EventType = "bankroll.settlement.wager.settled"
	EventWagerRefunded       EventType = "bankroll.settlement.wager.refunded"
	EventWagerTransferred    EventType = "bankroll.ledger.wager.transferred"
	EventPayoutTransferred   EventType = "bankroll.ledger.payout.transferred"
	EventFundsReserved       EventType = "bankroll.ledger.funds.reserved"
	EventFundsReleased       EventType = "bankroll.ledger.funds.released"
	EventDeposit             EventType = "bankroll.ledger.deposit"
	EventBankrollWithdrawn   EventType = "bankroll.ledger.withdrawn"
	EventFeesSwept           EventType = "bankroll.ledger.fees.swept"
	EventExecuted            EventType = "bankroll.ledger.executed"
	EventGameRegistered      EventType = "bankroll.ledger.game.registered"
	EventPlayerSuspended     EventType = "bankroll.player.suspended"
	EventPlayerUnsuspended   EventType = "bankroll.player.unsuspended"
	EventRewardsEarned       EventType = "bankroll.rewards.earned"
	EventRewardsClaimed      EventType = "bankroll.rewards.claimed"
	EventVaultPoolAdded      EventType = "bankroll.vault.pool.added"
	EventVaultDeposit        EventType = "bankroll.vault.deposit"
	EventVaultWithdraw       EventType = "bankroll.vault.withdraw"
	EventVaultRewardsAdded   EventType = "bankroll.vault.rewards.distributed"
	EventVaultRewardsClaimed EventType = "bankroll.vault.rewards.claimed"
	EventRandomnessRequested EventType = "bankroll.randomness.requested"
	EventRandomnessFulfilled EventType = "bankroll.randomness.fulfilled"
)

// AggregateType enumerates the aggregate root types for outbox events.
type AggregateType string

const (
	AggregateWager      AggregateType = "wager"
	AggregateBankroll   AggregateType = "bankroll"
	AggregatePlayer     AggregateType = "player"
	AggregateVault      AggregateType = "vault"
	AggregateRandomness AggregateType = "randomness"
)

// OutboxDraft is the payload written to the event_outbox table.
type OutboxDraft struct {
	EventID       uuid.UUID       `json:"eventId"`
	AggregateType AggregateType   `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	EventType     EventType       `json:"eventType"`
	PartitionKey  string          `json:"partitionKey"`
	Headers       json.RawMessage `json:"headers"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurredAt"`
}

// EventSink receives domain events for indexing and audit.
type EventSink interface {
	Emit(ctx context.Context, draft OutboxDraft) error
}

// DiscardSink drops every event.
type DiscardSink struct{}

func (DiscardSink) Emit(context.Context, OutboxDraft) error { return nil }

// Package randomness is the asynchronous randomness gateway: requests return
// a correlation id at once and are fulfilled later, at most once, by a
// separate delivery call.
package randomness

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/attaboy/bankroll/internal/chain"
	"github.com/attaboy/bankroll/internal/domain"
)

// MaxWordsPerRequest bounds the words a single request may ask for.
const MaxWordsPerRequest = 500

// Consumer receives fulfillments. Implementations must reject any caller
// other than the gateway's address.
type Consumer interface {
	FulfillRandomWords(ctx context.Context, from domain.Address, id domain.RequestID, words []domain.Word) error
}

// Requester issues randomness requests on behalf of a consumer.
type Requester interface {
	RequestRandomWords(ctx context.Context, consumer Consumer, count uint32) (domain.RequestID, error)
	// Address is the account fulfillments come from and request fees are paid to.
	Address() domain.Address
}

type request struct {
	id          domain.RequestID
	consumer    Consumer
	count       uint32
	requestedAt time.Time
	dueAt       time.Time
}

// PendingRequest is a read-only view of an undelivered request.
type PendingRequest struct {
	ID          domain.RequestID `json:"id"`
	Count       uint32           `json:"count"`
	RequestedAt time.Time        `json:"requested_at"`
	DueAt       time.Time        `json:"due_at"`
}

// Coordinator queues requests and delivers each one once its delay has passed.
type Coordinator struct {
	address domain.Address
	source  Source
	clock   chain.Clock
	delay   time.Duration
	sink    domain.EventSink
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[domain.RequestID]*request
}

// NewCoordinator creates a gateway that fulfills requests after delay.
func NewCoordinator(address domain.Address, source Source, clock chain.Clock, delay time.Duration, sink domain.EventSink, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		address: address,
		source:  source,
		clock:   clock,
		delay:   delay,
		sink:    sink,
		logger:  logger,
		pending: make(map[domain.RequestID]*request),
	}
}

func (c *Coordinator) Address() domain.Address { return c.address }

// RequestRandomWords records a request and returns its correlation id.
func (c *Coordinator) RequestRandomWords(ctx context.Context, consumer Consumer, count uint32) (domain.RequestID, error) {
	if consumer == nil {
		return "", domain.ErrValidation("randomness consumer is required")
	}
	if count == 0 || count > MaxWordsPerRequest {
		return "", domain.ErrValidation(fmt.Sprintf("word count must be between 1 and %d, got %d", MaxWordsPerRequest, count))
	}

	now := c.clock.Now()
	req := &request{
		id:          NewRequestID(now),
		consumer:    consumer,
		count:       count,
		requestedAt: now,
		dueAt:       now.Add(c.delay),
	}

	c.mu.Lock()
	c.pending[req.id] = req
	c.mu.Unlock()

	c.emit(ctx, domain.EventRandomnessRequested, req.id, PendingRequest{
		ID: req.id, Count: count, RequestedAt: now, DueAt: req.dueAt,
	}, now)
	c.logger.Debug("randomness requested", "request_id", req.id, "count", count)
	return req.id, nil
}

// Pending lists undelivered requests, oldest first.
func (c *Coordinator) Pending() []PendingRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]PendingRequest, 0, len(c.pending))
	for _, r := range c.pending {
		out = append(out, PendingRequest{ID: r.id, Count: r.count, RequestedAt: r.requestedAt, DueAt: r.dueAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Deliver fulfills one request now, regardless of its due time. The request
// is removed before the consumer runs, so it can never be delivered twice;
// a consumer error is returned but the request is not retried.
func (c *Coordinator) Deliver(ctx context.Context, id domain.RequestID) error {
	c.mu.Lock()
	req, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if !ok {
		return domain.ErrUnknownRequest(id)
	}

	words, err := c.source.Words(ctx, int(req.count))
	if err != nil {
		c.mu.Lock()
		c.pending[id] = req
		c.mu.Unlock()
		return fmt.Errorf("draw words for %s: %w", id, err)
	}

	if err := req.consumer.FulfillRandomWords(ctx, c.address, id, words); err != nil {
		c.logger.Error("fulfillment rejected by consumer", "request_id", id, "error", err)
		return fmt.Errorf("fulfill %s: %w", id, err)
	}

	c.emit(ctx, domain.EventRandomnessFulfilled, id, map[string]interface{}{"id": id, "words": len(words)}, c.clock.Now())
	c.logger.Debug("randomness fulfilled", "request_id", id, "words", len(words))
	return nil
}

// DeliverDue fulfills every request whose delay has elapsed and returns how
// many were delivered successfully.
func (c *Coordinator) DeliverDue(ctx context.Context) int {
	now := c.clock.Now()
	c.mu.Lock()
	var due []domain.RequestID
	for id, r := range c.pending {
		if !now.Before(r.dueAt) {
			due = append(due, id)
		}
	}
	c.mu.Unlock()
	sort.Slice(due, func(i, j int) bool { return due[i] < due[j] })

	delivered := 0
	for _, id := range due {
		if err := c.Deliver(ctx, id); err != nil {
			c.logger.Warn("randomness delivery failed", "request_id", id, "error", err)
			continue
		}
		delivered++
	}
	return delivered
}

// Start runs the delivery worker in a goroutine. Stops when ctx is cancelled.
func (c *Coordinator) Start(ctx context.Context, interval time.Duration) {
	c.logger.Info("randomness coordinator started", "interval", interval, "delay", c.delay)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				c.logger.Info("randomness coordinator stopped")
				return
			case <-ticker.C:
				if n := c.DeliverDue(ctx); n > 0 {
					c.logger.Debug("randomness delivery pass complete", "delivered", n)
				}
			}
		}
	}()
}

func (c *Coordinator) emit(ctx context.Context, eventType domain.EventType, id domain.RequestID, payload interface{}, at time.Time) {
	if err := c.sink.Emit(ctx, domain.NewEvent(domain.AggregateRandomness, string(id), eventType, payload, at)); err != nil {
		c.logger.Error("emit randomness event failed", "event_type", eventType, "error", err)
	}
}

package domain

// GuardResult is the verdict of a request guard (rate limiter, circuit breaker, idempotency).
type GuardResult struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Guard   string `json:"guard,omitempty"` // which guard blocked
}

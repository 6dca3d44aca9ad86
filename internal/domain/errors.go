package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrorClass groups domain errors into the caller-visible failure taxonomy.
type ErrorClass string

const (
	ClassValidation    ErrorClass = "validation"
	ClassAuthorization ErrorClass = "authorization"
	ClassState         ErrorClass = "state"
	ClassExternal      ErrorClass = "external"
	ClassTimeout       ErrorClass = "timeout"
	ClassInternal      ErrorClass = "internal"
)

// AppError is the base domain error type.
type AppError struct {
	Code    string     `json:"code"`
	Message string     `json:"message"`
	Class   ErrorClass `json:"-"`
	Status  int        `json:"-"`
	Cause   error      `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// Is matches two AppErrors by code so sentinel comparisons work with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// ClassOf returns the class of the first AppError in err's chain, or "" if there is none.
func ClassOf(err error) ErrorClass {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Class
	}
	return ""
}

// CodeOf returns the code of the first AppError in err's chain, or "" if there is none.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// Standard domain error constructors.

func ErrNotFound(entity, id string) *AppError {
	return &AppError{Code: "NOT_FOUND", Message: fmt.Sprintf("%s %s not found", entity, id), Class: ClassValidation, Status: 404}
}

func ErrValidation(msg string) *AppError {
	return &AppError{Code: "VALIDATION_ERROR", Message: msg, Class: ClassValidation, Status: 400}
}

func ErrZeroAmount(what string) *AppError {
	return &AppError{Code: "ZERO_AMOUNT", Message: what + " must be greater than zero", Class: ClassValidation, Status: 400}
}

func ErrUnsupportedToken(token Address) *AppError {
	return &AppError{Code: "UNSUPPORTED_TOKEN", Message: fmt.Sprintf("token %s is not supported", token), Class: ClassValidation, Status: 400}
}

func ErrUnauthorized(msg string) *AppError {
	return &AppError{Code: "UNAUTHORIZED", Message: msg, Class: ClassAuthorization, Status: 401}
}

func ErrForbidden(msg string) *AppError {
	return &AppError{Code: "FORBIDDEN", Message: msg, Class: ClassAuthorization, Status: 403}
}

func ErrNotGame(caller Address) *AppError {
	return &AppError{Code: "NOT_AUTHORIZED_GAME", Message: fmt.Sprintf("%s is not an authorized game", caller), Class: ClassAuthorization, Status: 403}
}

func ErrNotOwner(caller Address) *AppError {
	return &AppError{Code: "NOT_OWNER", Message: fmt.Sprintf("%s is not the owner", caller), Class: ClassAuthorization, Status: 403}
}

func ErrConflict(msg string) *AppError {
	return &AppError{Code: "CONFLICT", Message: msg, Class: ClassState, Status: 409}
}

func ErrInsufficientFunds(msg string) *AppError {
	return &AppError{Code: "INSUFFICIENT_FUNDS", Message: msg, Class: ClassState, Status: 409}
}

func ErrInsufficientReserved(msg string) *AppError {
	return &AppError{Code: "INSUFFICIENT_RESERVED", Message: msg, Class: ClassState, Status: 409}
}

func ErrWagerAboveLimit(wager, limit Amount) *AppError {
	return &AppError{
		Code:    "WAGER_ABOVE_LIMIT",
		Message: fmt.Sprintf("wager exposure %s exceeds bankroll limit %s", wager, limit),
		Class:   ClassState,
		Status:  409,
	}
}

func ErrSuspended(player Address, until time.Time) *AppError {
	msg := fmt.Sprintf("player %s is suspended until %s", player, until.UTC().Format(time.RFC3339))
	if IsPermanent(until) {
		msg = fmt.Sprintf("player %s is permanently banned", player)
	}
	return &AppError{Code: "PLAYER_SUSPENDED", Message: msg, Class: ClassState, Status: 403}
}

func ErrNotSuspended(player Address) *AppError {
	return &AppError{Code: "NOT_SUSPENDED", Message: fmt.Sprintf("player %s is not suspended", player), Class: ClassState, Status: 409}
}

func ErrOutsideWindow() *AppError {
	return &AppError{Code: "OUTSIDE_WITHDRAW_WINDOW", Message: "withdrawals are only allowed inside a withdrawal window", Class: ClassState, Status: 409}
}

func ErrLockPeriod(remaining time.Duration) *AppError {
	return &AppError{Code: "LOCK_PERIOD_ACTIVE", Message: fmt.Sprintf("deposit is locked for another %s", remaining), Class: ClassState, Status: 409}
}

func ErrPoolInactive(token Address) *AppError {
	return &AppError{Code: "POOL_INACTIVE", Message: fmt.Sprintf("pool for %s is inactive", token), Class: ClassState, Status: 409}
}

func ErrUnknownRequest(id RequestID) *AppError {
	return &AppError{Code: "UNKNOWN_REQUEST", Message: fmt.Sprintf("no pending wager for request %s", id), Class: ClassState, Status: 404}
}

func ErrNoPendingWager(player Address) *AppError {
	return &AppError{Code: "NO_PENDING_WAGER", Message: fmt.Sprintf("player %s has no pending wager", player), Class: ClassState, Status: 404}
}

func ErrReentrant() *AppError {
	return &AppError{Code: "REENTRANT_CALL", Message: "reentrant call rejected", Class: ClassState, Status: 409}
}

func ErrExternalCall(msg string, cause error) *AppError {
	return &AppError{Code: "EXTERNAL_CALL_FAILED", Message: msg, Class: ClassExternal, Status: 502, Cause: cause}
}

func ErrTimeoutNotReached(elapsed, required uint64) *AppError {
	return &AppError{
		Code:    "TIMEOUT_NOT_REACHED",
		Message: fmt.Sprintf("refund available after %d blocks, %d elapsed", required, elapsed),
		Class:   ClassTimeout,
		Status:  409,
	}
}

func ErrInternal(msg string, cause error) *AppError {
	return &AppError{Code: "INTERNAL_ERROR", Message: msg, Class: ClassInternal, Status: 500, Cause: cause}
}

// AwaitingRandomnessError is returned by Play while the player still has a wager in flight.
type AwaitingRandomnessError struct {
	Player    Address
	RequestID RequestID
}

func (e *AwaitingRandomnessError) Error() string {
	return e.Unwrap().Error()
}

// Unwrap exposes the underlying AppError so errors.As(*AppError) works for handlers.
func (e *AwaitingRandomnessError) Unwrap() error {
	return &AppError{
		Code:    "AWAITING_RANDOMNESS",
		Message: fmt.Sprintf("player %s is awaiting randomness for request %s", e.Player, e.RequestID),
		Class:   ClassState,
		Status:  409,
	}
}

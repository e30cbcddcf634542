package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the run core wraps exactly one of these.
var (
	ErrNotFound             = errors.New("not found")
	ErrAccessDenied         = errors.New("access denied")
	ErrAlreadyCompleted     = errors.New("run already completed")
	ErrConflict             = errors.New("conflict")
	ErrInvalidInput         = errors.New("invalid input")
	ErrInsufficientResource = errors.New("insufficient resource")
	ErrRuleViolation        = errors.New("rule violation")
	ErrNoOpponent           = errors.New("no opponent available")
	ErrInternalError        = errors.New("internal server error")
)

// Error carries a kind plus enough context to render a message for the player.
type Error struct {
	Kind    error          `json:"-"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Message)
}

func (e *Error) Unwrap() error { return e.Kind }

// NewError builds a structured error. details is a flat list of key/value pairs.
func NewError(kind error, code, message string, details ...any) *Error {
	e := &Error{Kind: kind, Code: code, Message: message}
	if len(details) > 1 {
		e.Details = make(map[string]any, len(details)/2)
		for i := 0; i+1 < len(details); i += 2 {
			key, ok := details[i].(string)
			if !ok {
				continue
			}
			e.Details[key] = details[i+1]
		}
	}
	return e
}

// AsError extracts the structured error, if any.
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Commonly raised errors.

func RunNotFound(runID string) *Error {
	return NewError(ErrNotFound, "run_not_found", "run does not exist", "run_id", runID)
}

func NotRunOwner(runID, playerID string) *Error {
	return NewError(ErrAccessDenied, "not_run_owner", "run belongs to another player",
		"run_id", runID, "player_id", playerID)
}

func RunCompleted(runID string, status RunStatus) *Error {
	return NewError(ErrAlreadyCompleted, "run_completed", "run is no longer active",
		"run_id", runID, "status", status)
}

func NotEnoughGold(required, actual int) *Error {
	return NewError(ErrInsufficientResource, "insufficient_gold", "not enough gold",
		"required", required, "actual", actual)
}

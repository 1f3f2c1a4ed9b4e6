// Package guardian is the AI fallback consulted when no rule matches a
// command.
//
//	Provider (interface)
//	  ├── Client   OpenAI-compatible chat completions
//	  └── Caching  wraps any Provider with a response cache
//
// Every failure comes back as a *Error with a Kind, so callers can fall
// back to PASS and still tell an outage apart from a real PASS verdict.
package guardian

import (
	"context"
	"errors"
	"fmt"
)

type Action string

const (
	ActionPass    Action = "PASS"
	ActionExecute Action = "EXECUTE"
	ActionError   Action = "ERROR"
)

func (a Action) Valid() bool {
	switch a {
	case ActionPass, ActionExecute, ActionError:
		return true
	}
	return false
}

// Response is a parsed model verdict.
type Response struct {
	Action  Action `json:"action"`
	Command string `json:"command,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

// Provider analyzes one rendered prompt.
type Provider interface {
	Name() string
	Analyze(ctx context.Context, prompt string) (Response, error)
}

type ErrorKind string

const (
	KindUnavailable ErrorKind = "unavailable" // not configured
	KindTransport   ErrorKind = "transport"   // network error or timeout
	KindAuth        ErrorKind = "auth"        // 401/403
	KindStatus      ErrorKind = "status"      // other non-2xx
	KindParse       ErrorKind = "parse"       // reply was not a valid verdict
)

// Error is returned by every Provider in this package.
type Error struct {
	Kind       ErrorKind
	Attempts   int
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("ai %s error", e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Attempts > 1 {
		msg += fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the failure kind, or "" when err is nil or foreign.
func KindOf(err error) ErrorKind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}

// Unavailable is the Provider used when AI analysis is turned off.
type Unavailable struct {
	Why string
}

func (u Unavailable) Name() string { return "none" }

func (u Unavailable) Analyze(ctx context.Context, prompt string) (Response, error) {
	return Response{}, &Error{Kind: KindUnavailable, Err: errors.New(u.Why)}
}

package wiki

import (
	"fmt"
	"strings"
)

// Error codes for programmatic error handling
type ErrorCode string

const (
	// Communication error codes
	CommCodeTransport    ErrorCode = "COMM_TRANSPORT"
	CommCodeBadResponse  ErrorCode = "COMM_BAD_RESPONSE"
	CommCodeLagExhausted ErrorCode = "COMM_LAG_RETRIES_EXHAUSTED"
	CommCodeCancelled    ErrorCode = "COMM_CANCELLED"

	// Token error codes
	TokenCodeUnsupported ErrorCode = "TOKEN_UNSUPPORTED_KIND"
	TokenCodeMissing     ErrorCode = "TOKEN_MISSING"
)

// CommError indicates the remote call could not be completed at all: the
// transport failed, the response was not valid JSON, or the lag retry
// budget ran out. Business-level failures (denied edits, missing pages,
// login refusals) are never a CommError; those land in the entity's
// error record instead.
type CommError struct {
	Code   ErrorCode
	Action string // API action being attempted, if known
	Reason string
	Err    error // underlying cause, if any
}

func (e *CommError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] wiki API call failed", e.Code))
	if e.Action != "" {
		sb.WriteString(fmt.Sprintf(" (action=%s)", e.Action))
	}
	sb.WriteString(": " + e.Reason)
	if e.Err != nil {
		sb.WriteString(": " + e.Err.Error())
	}
	return sb.String()
}

func (e *CommError) Unwrap() error {
	return e.Err
}

// TokenKindError indicates a request for a token kind the client does not
// recognize. It is raised before any network traffic happens.
type TokenKindError struct {
	Kind TokenKind
}

func (e *TokenKindError) Error() string {
	return fmt.Sprintf("[%s] unsupported token kind %q: only %q and %q are recognized",
		TokenCodeUnsupported, string(e.Kind), string(TokenCSRF), string(TokenLogin))
}

// ValidationError represents an input validation failure with recovery guidance
type ValidationError struct {
	Field      string
	Value      string
	Message    string
	Suggestion string
}

func (e *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Validation failed for %s: %s", e.Field, e.Message))
	if e.Value != "" {
		displayValue := e.Value
		if len(displayValue) > 100 {
			displayValue = displayValue[:100] + "..."
		}
		sb.WriteString(fmt.Sprintf("\n\nProvided value: %q", displayValue))
	}
	if e.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("\n\nTo fix this:\n%s", e.Suggestion))
	}
	return sb.String()
}

// ErrorLog records business-level failures per context key ("edit",
// "login", "upload", ...). A nil map means no failure has been observed
// since the last successful call.
type ErrorLog map[string]string

func (l *ErrorLog) record(key, msg string) {
	if *l == nil {
		*l = make(ErrorLog)
	}
	(*l)[key] = msg
}

func (l *ErrorLog) reset() {
	*l = nil
}

// snapshot returns a copy safe to hand to callers
func (l ErrorLog) snapshot() map[string]string {
	if len(l) == 0 {
		return nil
	}
	out := make(map[string]string, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}

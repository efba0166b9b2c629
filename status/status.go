package status

import (
	"errors"
	"fmt"
)

// ActivityLevel is the producer's operational state at the moment of a change.
type ActivityLevel int

const (
	Busy ActivityLevel = iota
	Idle
	Offline
	Stopped
	Connecting
)

// Tokens forwarded to subscribers.
const (
	TokenBusy       = "BUSY"
	TokenIdle       = "IDLE"
	TokenOffline    = "OFFLINE"
	TokenStopped    = "STOPPED"
	TokenConnecting = "CONNECTING"
)

// ErrorCategory labels every error notification emitted for a producer failure.
const ErrorCategory = "ReplicationException"

// DefaultErrorMessage is used when the producer's error carries no text.
const DefaultErrorMessage = "Error during replication"

// UnknownErrorCode is reported for errors that do not expose a code.
const UnknownErrorCode = -1

var tokens = map[ActivityLevel]string{
	Busy:       TokenBusy,
	Idle:       TokenIdle,
	Offline:    TokenOffline,
	Stopped:    TokenStopped,
	Connecting: TokenConnecting,
}

// Token returns the string token for level. ok is false for values outside
// the five known levels.
func Token(level ActivityLevel) (token string, ok bool) {
	token, ok = tokens[level]
	return token, ok
}

func (l ActivityLevel) String() string {
	if t, ok := Token(l); ok {
		return t
	}
	return fmt.Sprintf("ActivityLevel(%d)", int(l))
}

// Coder is implemented by producer errors that carry an integer code.
type Coder interface {
	Code() int
}

// ReplicationError is the error type producers in this module report.
type ReplicationError struct {
	ErrorCode int
	Message   string
}

// NewReplicationError creates a ReplicationError with the given code and message.
func NewReplicationError(code int, message string) *ReplicationError {
	return &ReplicationError{ErrorCode: code, Message: message}
}

func (e *ReplicationError) Error() string {
	if e == nil {
		return DefaultErrorMessage
	}
	if e.Message == "" {
		return fmt.Sprintf("replication error (code %d)", e.ErrorCode)
	}
	return fmt.Sprintf("%s (code %d)", e.Message, e.ErrorCode)
}

// Code returns the producer error code.
func (e *ReplicationError) Code() int {
	if e == nil {
		return UnknownErrorCode
	}
	return e.ErrorCode
}

// ErrorNotification is the payload delivered for a producer-side failure.
type ErrorNotification struct {
	Category string `msgpack:"category" json:"category"`
	Message  string `msgpack:"message" json:"message"`
	Code     int    `msgpack:"code" json:"code"`
}

func (n *ErrorNotification) Error() string {
	return fmt.Sprintf("%s: %s (code %d)", n.Category, n.Message, n.Code)
}

// NewErrorNotification converts a producer error into a notification.
// The code is taken from the first error in the chain implementing Coder.
// An error whose Error or Code method panics keeps the defaults.
func NewErrorNotification(err error) (n *ErrorNotification) {
	n = &ErrorNotification{
		Category: ErrorCategory,
		Message:  DefaultErrorMessage,
		Code:     UnknownErrorCode,
	}
	defer func() {
		if r := recover(); r != nil {
			n = &ErrorNotification{
				Category: ErrorCategory,
				Message:  DefaultErrorMessage,
				Code:     UnknownErrorCode,
			}
		}
	}()

	var re *ReplicationError
	if errors.As(err, &re) && re != nil {
		n.Code = re.ErrorCode
		if re.Message != "" {
			n.Message = re.Message
		}
		return n
	}

	var c Coder
	if errors.As(err, &c) {
		n.Code = c.Code()
	}
	if msg := err.Error(); msg != "" {
		n.Message = msg
	}
	return n
}

// Event is a value delivered to a subscriber: either a status token or an error.
type Event struct {
	Token string
	Err   *ErrorNotification
}

// IsError reports whether the event carries an error notification.
func (e Event) IsError() bool {
	return e.Err != nil
}

func (e Event) String() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Token
}

// StatusEvent creates a success event for token.
func StatusEvent(token string) Event {
	return Event{Token: token}
}

// ErrorEvent creates an error event for err.
func ErrorEvent(err error) Event {
	return Event{Err: NewErrorNotification(err)}
}

// Change is a single status transition reported by a producer.
type Change struct {
	Level ActivityLevel
	Err   error
}

// ChangeListener receives producer status transitions.
// Implementations must not block the calling goroutine.
type ChangeListener interface {
	Changed(change Change)
}

package corvus

import (
	"errors"
	"fmt"
)

// API misuse errors, distinct from protocol-level failures.
var (
	ErrClientClosed = errors.New("smtp: client closed")
	ErrNoConnection = errors.New("smtp: no connection established")
	ErrNotReady     = errors.New("smtp: connection not ready for this operation")
)

// ErrorCode classifies engine failures.
type ErrorCode string

const (
	// CodeConnection: transport could not be established, was closed
	// unexpectedly, or the server issued 421.
	CodeConnection ErrorCode = "ECONNECTION"
	// CodeTimeout: the connection, greeting or idle timer fired.
	CodeTimeout ErrorCode = "ETIMEDOUT"
	// CodeTLS: STARTTLS refused or TLS handshake failure.
	CodeTLS ErrorCode = "ETLS"
	// CodeProtocol: malformed greeting or reply, or a reply arriving
	// with no command outstanding.
	CodeProtocol ErrorCode = "EPROTOCOL"
	// CodeAuth: an AUTH exchange deviated from its expected
	// response.
	CodeAuth ErrorCode = "EAUTH"
	// CodeEnvelope: MAIL FROM failure, invalid address, all
	// recipients rejected, or invalid DSN parameters.
	CodeEnvelope ErrorCode = "EENVELOPE"
	// CodeMessage: empty message, size over limit, or DATA failure.
	CodeMessage ErrorCode = "EMESSAGE"
	// CodeStream: the caller-supplied message stream failed.
	CodeStream ErrorCode = "ESTREAM"
)

// Error is the structured failure type returned by engine operations.
type Error struct {
	Code    ErrorCode
	Message string

	// Response is the raw server reply that triggered the failure,
	// when one exists.
	Response     string
	ResponseCode int

	// Command names the SMTP command in flight.
	Command string

	// Recipient is set on per-recipient failures.
	Recipient string

	// Rejected and RejectedErrors are populated when a transaction
	// fails with every recipient refused.
	Rejected       []string
	RejectedErrors []*Error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Response != "" {
		msg += ": " + e.Response
	}
	return msg
}

// Temporary reports whether the failure carries a transient (4xx)
// server reply.
func (e *Error) Temporary() bool {
	return e.ResponseCode >= 400 && e.ResponseCode < 500
}

func newError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func wrapError(code ErrorCode, command string, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Code: code, Message: err.Error(), Command: command}
}

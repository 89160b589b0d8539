package corvus

import (
	"strings"
	"time"

	"github.com/corvuslabs/corvus/utils"
)

// DSN carries the RFC 3461 delivery status notification parameters.
// Ret and EnvID are envelope-level (MAIL FROM); Notify and ORcpt apply
// to every recipient (RCPT TO).
type DSN struct {
	// Ret selects how much of the message is returned in a bounce:
	// "FULL" or "HDRS".
	Ret string

	// EnvID is the envelope identifier echoed in notifications.
	EnvID string

	// Notify lists the conditions that trigger a notification:
	// "NEVER", "SUCCESS", "FAILURE", "DELAY". NEVER must appear
	// alone.
	Notify []string

	// ORcpt is the original recipient (e.g. "rfc822;user@example.com").
	ORcpt string
}

// Envelope is the RFC 5321 sender and recipient list plus the
// SMTP-extension parameters of one transaction.
type Envelope struct {
	From string
	To   []string

	// Size is the declared message size, forwarded via SIZE= when
	// advertised.
	Size int64

	// Use8BitMIME requests BODY=8BITMIME when advertised.
	Use8BitMIME bool

	DSN *DSN
}

// Result summarizes a completed (or partially completed) transaction.
type Result struct {
	// Accepted and Rejected partition the envelope recipients.
	Accepted []string
	Rejected []string

	// RejectedErrors carries the per-recipient server verdicts, in
	// rejection order.
	RejectedErrors []*Error

	// Response is the server's final raw reply.
	Response string

	// EnvelopeTime covers MAIL FROM through the last RCPT reply;
	// MessageTime covers the DATA phase. MessageSize is the encoded
	// body size on the wire.
	EnvelopeTime time.Duration
	MessageTime  time.Duration
	MessageSize  int64
}

var dsnNotifyValues = map[string]bool{
	"NEVER":   true,
	"SUCCESS": true,
	"FAILURE": true,
	"DELAY":   true,
}

// validate runs the synchronous pre-checks: recipients present,
// addresses free of CR/LF and angle brackets, DSN parameters sane.
func (e *Envelope) validate() *Error {
	if len(e.To) == 0 {
		return newError(CodeEnvelope, "no recipients defined")
	}
	if err := validateAddress(e.From); err != nil {
		return err
	}
	for _, rcpt := range e.To {
		if err := validateAddress(rcpt); err != nil {
			return err
		}
	}
	if e.DSN != nil {
		if err := e.DSN.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (d *DSN) validate() *Error {
	switch strings.ToUpper(d.Ret) {
	case "", "FULL", "HDRS":
	default:
		return newError(CodeEnvelope, "invalid DSN RET value %q", d.Ret)
	}
	for _, n := range d.Notify {
		if !dsnNotifyValues[strings.ToUpper(n)] {
			return newError(CodeEnvelope, "invalid DSN NOTIFY value %q", n)
		}
	}
	if len(d.Notify) > 1 {
		for _, n := range d.Notify {
			if strings.EqualFold(n, "NEVER") {
				return newError(CodeEnvelope, "DSN NOTIFY=NEVER excludes other values")
			}
		}
	}
	return nil
}

// validateAddress rejects addresses that could break command framing
// before any bytes reach the wire.
func validateAddress(addr string) *Error {
	if strings.ContainsAny(addr, "\r\n<>") {
		return newError(CodeEnvelope, "invalid address %q", addr)
	}
	return nil
}

// needsSMTPUTF8 reports whether any envelope address carries non-ASCII
// bytes.
func (e *Envelope) needsSMTPUTF8() bool {
	if utils.ContainsNonASCII(e.From) {
		return true
	}
	for _, rcpt := range e.To {
		if utils.ContainsNonASCII(rcpt) {
			return true
		}
	}
	return false
}

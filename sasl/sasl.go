// Package sasl implements client-side SASL mechanisms for SMTP
// authentication (RFC 4954). Every mechanism satisfies the
// github.com/emersion/go-sasl Client interface: Start produces the
// mechanism name and optional initial response, Next answers server
// challenges. Challenges and responses are raw bytes; base64 framing is
// the transport's job.
package sasl

import (
	"errors"
)

var (
	// ErrUnexpectedChallenge is returned when the server issues a
	// challenge the mechanism cannot answer.
	ErrUnexpectedChallenge = errors.New("sasl: unexpected server challenge")

	// ErrMissingCredentials is returned when a mechanism is built
	// without the credentials it needs.
	ErrMissingCredentials = errors.New("sasl: missing credentials")
)

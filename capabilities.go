package corvus

import (
	"strconv"
	"strings"
)

// Extension represents an SMTP extension keyword advertised in an EHLO
// reply.
type Extension string

const (
	// Ext8BitMIME indicates support for 8-bit MIME (RFC 6152).
	Ext8BitMIME Extension = "8BITMIME"
	// ExtPipelining indicates support for command pipelining (RFC 2920).
	ExtPipelining Extension = "PIPELINING"
	// ExtSMTPUTF8 indicates support for internationalized email (RFC 6531).
	ExtSMTPUTF8 Extension = "SMTPUTF8"
	// ExtSTARTTLS indicates support for TLS upgrade (RFC 3207).
	ExtSTARTTLS Extension = "STARTTLS"
	// ExtSize indicates support for message size declaration (RFC 1870).
	ExtSize Extension = "SIZE"
	// ExtDSN indicates support for Delivery Status Notifications (RFC 3461).
	ExtDSN Extension = "DSN"
	// ExtAuth indicates support for SMTP AUTH (RFC 4954).
	ExtAuth Extension = "AUTH"
)

// authMechanisms lists the AUTH keywords the engine recognizes in an
// EHLO reply, NTLM excluded: servers do not advertise it.
var authMechanisms = []string{"PLAIN", "LOGIN", "CRAM-MD5", "XOAUTH2"}

// Capabilities is the registry of extensions parsed from the last
// successful EHLO. It is rebuilt from scratch after STARTTLS.
type Capabilities struct {
	// ESMTP is false when the server only accepted HELO.
	ESMTP bool

	// Hostname is the server name from the first EHLO reply line.
	Hostname string

	// Extensions maps each advertised keyword to its parameter
	// string.
	Extensions map[Extension]string

	// Auth lists the advertised AUTH mechanisms the engine supports,
	// in order of appearance.
	Auth []string

	// MaxSize is the SIZE limit in bytes, 0 when absent or unlimited.
	MaxSize int64
}

// Has reports whether the extension was advertised.
func (c *Capabilities) Has(ext Extension) bool {
	if c == nil {
		return false
	}
	_, ok := c.Extensions[ext]
	return ok
}

// Param returns the advertised parameter string for an extension.
func (c *Capabilities) Param(ext Extension) string {
	if c == nil {
		return ""
	}
	return c.Extensions[ext]
}

// SupportsAuth reports whether the mechanism was advertised.
func (c *Capabilities) SupportsAuth(mechanism string) bool {
	if c == nil {
		return false
	}
	mechanism = strings.ToUpper(mechanism)
	for _, m := range c.Auth {
		if m == mechanism {
			return true
		}
	}
	return false
}

// parseCapabilities builds the registry from EHLO reply lines. The
// first line is the server greeting; the rest are extension keywords,
// matched case-insensitively.
func parseCapabilities(lines []string) *Capabilities {
	caps := &Capabilities{
		ESMTP:      true,
		Extensions: make(map[Extension]string),
	}
	if len(lines) > 0 {
		caps.Hostname, _, _ = strings.Cut(lines[0], " ")
	}

	for _, line := range lines[min(1, len(lines)):] {
		keyword, params, _ := strings.Cut(strings.TrimSpace(line), " ")
		ext := Extension(strings.ToUpper(keyword))

		switch ext {
		case ExtAuth:
			for _, mech := range strings.Fields(strings.ToUpper(params)) {
				for _, known := range authMechanisms {
					if mech == known && !caps.SupportsAuth(mech) {
						caps.Auth = append(caps.Auth, mech)
					}
				}
			}
			caps.Extensions[ext] = params
		case ExtSize:
			if params != "" {
				if n, err := strconv.ParseInt(strings.Fields(params)[0], 10, 64); err == nil {
					caps.MaxSize = n
				}
			}
			caps.Extensions[ext] = params
		case Ext8BitMIME, ExtPipelining, ExtSMTPUTF8, ExtSTARTTLS, ExtDSN:
			caps.Extensions[ext] = params
		default:
			// Unrecognized keywords are retained for Param queries.
			caps.Extensions[ext] = params
		}
	}

	return caps
}

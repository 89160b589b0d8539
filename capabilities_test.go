package corvus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCapabilities(t *testing.T) {
	caps := parseCapabilities([]string{
		"mail.example.com greets you",
		"PIPELINING",
		"SIZE 10485760",
		"STARTTLS",
		"AUTH LOGIN PLAIN XOAUTH2",
		"8BITMIME",
		"SMTPUTF8",
		"DSN",
	})

	assert.True(t, caps.ESMTP)
	assert.Equal(t, "mail.example.com", caps.Hostname)
	assert.True(t, caps.Has(ExtPipelining))
	assert.True(t, caps.Has(ExtSTARTTLS))
	assert.True(t, caps.Has(Ext8BitMIME))
	assert.True(t, caps.Has(ExtSMTPUTF8))
	assert.True(t, caps.Has(ExtDSN))
	assert.Equal(t, int64(10485760), caps.MaxSize)

	// Mechanism order follows the advertisement.
	assert.Equal(t, []string{"LOGIN", "PLAIN", "XOAUTH2"}, caps.Auth)
}

func TestParseCapabilitiesCaseInsensitive(t *testing.T) {
	caps := parseCapabilities([]string{
		"mail.example.com",
		"pipelining",
		"Size 512",
		"auth plain cram-md5",
	})
	assert.True(t, caps.Has(ExtPipelining))
	assert.Equal(t, int64(512), caps.MaxSize)
	assert.Equal(t, []string{"PLAIN", "CRAM-MD5"}, caps.Auth)
}

func TestParseCapabilitiesSizeWithoutLimit(t *testing.T) {
	caps := parseCapabilities([]string{"mail.example.com", "SIZE"})
	assert.True(t, caps.Has(ExtSize))
	assert.Equal(t, int64(0), caps.MaxSize)
}

func TestParseCapabilitiesIgnoresUnknownAuthMechanisms(t *testing.T) {
	caps := parseCapabilities([]string{
		"mail.example.com",
		"AUTH GSSAPI PLAIN SCRAM-SHA-256 LOGIN",
	})
	// NTLM and friends never come from the advertisement.
	assert.Equal(t, []string{"PLAIN", "LOGIN"}, caps.Auth)
	assert.False(t, caps.SupportsAuth("GSSAPI"))
	assert.True(t, caps.SupportsAuth("plain"))
}

func TestParseCapabilitiesEmpty(t *testing.T) {
	caps := parseCapabilities([]string{"mail.example.com"})
	assert.True(t, caps.ESMTP)
	assert.False(t, caps.Has(ExtPipelining))
	assert.Empty(t, caps.Auth)
}

func TestCapabilitiesNilSafe(t *testing.T) {
	var caps *Capabilities
	assert.False(t, caps.Has(ExtPipelining))
	assert.False(t, caps.SupportsAuth("PLAIN"))
	assert.Equal(t, "", caps.Param(ExtSize))
}

package utils

import (
	"crypto/rand"
	"encoding/base64"
	"net"
	"os"
	"strings"
	"unicode/utf8"
)

// ContainsNonASCII reports whether s contains any byte outside
// US-ASCII. Addresses that do require the SMTPUTF8 extension.
func ContainsNonASCII(s string) bool {
	for _, v := range s {
		if v >= utf8.RuneSelf {
			return true
		}
	}
	return false
}

// ConnID generates a short connection identifier: 8 random bytes,
// base64-encoded with the non-word characters stripped.
func ConnID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	id := base64.StdEncoding.EncodeToString(b)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return -1
	}, id)
}

// HelloName resolves the identity announced in EHLO/LHLO. An explicit
// name wins. Otherwise the machine hostname is used when it is fully
// qualified; a hostname that is an IP address is wrapped in brackets;
// anything else falls back to the [127.0.0.1] literal.
func HelloName(override string) string {
	if override != "" {
		return override
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "[127.0.0.1]"
	}
	if ip := net.ParseIP(host); ip != nil {
		return "[" + ip.String() + "]"
	}
	if strings.Contains(host, ".") {
		return host
	}
	return "[127.0.0.1]"
}

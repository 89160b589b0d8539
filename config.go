package corvus

import (
	"crypto/tls"
	"io"
	"log/slog"
	"time"

	"github.com/corvuslabs/corvus/utils"
)

// Default timer values.
const (
	DefaultConnectTimeout  = 120 * time.Second
	DefaultGreetingTimeout = 30 * time.Second
	DefaultSocketTimeout   = 600 * time.Second
)

// Config holds the immutable per-connection configuration.
type Config struct {
	// Host and Port address the relay. Port defaults to 465 when
	// Secure is set, 25 otherwise.
	Host string
	Port int

	// Secure selects implicit TLS from the first byte.
	Secure bool

	// IgnoreTLS skips STARTTLS even when advertised.
	IgnoreTLS bool

	// RequireTLS makes STARTTLS mandatory: EHLO failure is fatal
	// (no HELO fallback) and STARTTLS is attempted even when not
	// advertised.
	RequireTLS bool

	// OpportunisticTLS continues in plaintext when the server
	// refuses STARTTLS.
	OpportunisticTLS bool

	// LMTP switches the engine to LMTP: LHLO instead of EHLO, and
	// one DATA reply per accepted recipient.
	LMTP bool

	// TLSConfig is used for implicit TLS and STARTTLS. ServerName
	// defaults to Host.
	TLSConfig *tls.Config

	// LocalAddr optionally binds the outgoing socket ("ip" or
	// "ip:port").
	LocalAddr string

	// ProxyURL optionally routes the connection through a SOCKS5
	// proxy ("socks5://host:port").
	ProxyURL string

	// Name is the EHLO/LHLO identity. When empty it is derived from
	// the machine hostname.
	Name string

	// Timeouts; zero values select the defaults above.
	ConnectTimeout  time.Duration
	GreetingTimeout time.Duration
	SocketTimeout   time.Duration

	// AuthMethod overrides mechanism selection ("PLAIN", "LOGIN",
	// "CRAM-MD5", "XOAUTH2", "NTLM").
	AuthMethod string

	// EnvelopeOnly stops each transaction after the RCPT phase,
	// returning the per-recipient verdicts without sending DATA.
	EnvelopeOnly bool

	// Logger receives structured diagnostics. Defaults to a discard
	// logger. Debug additionally traces the protocol exchange at
	// debug level.
	Logger *slog.Logger
	Debug  bool
}

// withDefaults returns a copy of cfg with zero values resolved.
func (cfg Config) withDefaults() Config {
	if cfg.Port == 0 {
		if cfg.Secure {
			cfg.Port = 465
		} else {
			cfg.Port = 25
		}
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.GreetingTimeout == 0 {
		cfg.GreetingTimeout = DefaultGreetingTimeout
	}
	if cfg.SocketTimeout == 0 {
		cfg.SocketTimeout = DefaultSocketTimeout
	}
	if cfg.Name == "" {
		cfg.Name = utils.HelloName("")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return cfg
}

package corvus

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/net/proxy"

	"github.com/corvuslabs/corvus/utils"
	"github.com/corvuslabs/corvus/wire"
)

// Stage is the connection lifecycle position.
type Stage int

const (
	// StageInit is the state before Connect.
	StageInit Stage = iota
	// StageConnected means the transport is up, greeting not yet read.
	StageConnected
	// StageGreeted means the 220 greeting arrived, EHLO in progress.
	StageGreeted
	// StageReady accepts Login, Send, Reset, Noop and Quit.
	StageReady
	// StageClosed is terminal.
	StageClosed
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageInit:
		return "INIT"
	case StageConnected:
		return "CONNECTED"
	case StageGreeted:
		return "GREETED"
	case StageReady:
		return "READY"
	case StageClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Client drives one SMTP or LMTP connection: transport setup, greeting,
// capability negotiation, optional STARTTLS upgrade, authentication and
// mail transactions. Public operations must not be invoked
// concurrently; a mutex serializes misuse.
type Client struct {
	cfg Config
	id  string
	log *slog.Logger

	mu   sync.Mutex
	conn net.Conn
	in   *wire.Reader
	out  *wire.Writer

	caps     *Capabilities
	greeting string

	stage         Stage
	secure        bool
	authenticated bool
	closed        bool
}

// New creates a client for the given configuration. No connection is
// made until Connect.
func New(cfg Config) *Client {
	cfg = cfg.withDefaults()
	id := utils.ConnID()
	return &Client{
		cfg:   cfg,
		id:    id,
		log:   cfg.Logger.With(slog.String("sid", id)),
		caps:  &Capabilities{Extensions: map[Extension]string{}},
		stage: StageInit,
	}
}

// ID returns the connection identifier used in diagnostics.
func (c *Client) ID() string { return c.id }

// Greeting returns the server's 220 greeting text.
func (c *Client) Greeting() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.greeting
}

// Capabilities returns the registry from the last successful EHLO.
func (c *Client) Capabilities() *Capabilities {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.caps
}

// MaxSize returns the server's advertised SIZE limit, 0 when absent.
func (c *Client) MaxSize() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.caps.MaxSize
}

// Secure reports whether the connection is TLS-protected.
func (c *Client) Secure() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.secure
}

// Authenticated reports whether Login completed successfully.
func (c *Client) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticated
}

// Stage returns the current lifecycle stage.
func (c *Client) Stage() Stage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stage
}

// Connect establishes the transport, reads the greeting, negotiates
// capabilities and, depending on configuration, upgrades to TLS and
// re-negotiates. On return the connection is ready for Login and Send.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}
	if c.stage != StageInit {
		return ErrNotReady
	}

	conn, err := c.dial(ctx)
	if err != nil {
		c.closeLocked()
		return err
	}
	c.conn = conn
	c.secure = c.cfg.Secure
	c.setStream(conn)
	c.stage = StageConnected
	c.log.Debug("transport established",
		slog.String("host", c.cfg.Host),
		slog.Int("port", c.cfg.Port),
		slog.Bool("secure", c.secure),
	)

	// Greeting, on its own shorter timer.
	resp, rerr := c.readResponse("greeting", c.cfg.GreetingTimeout)
	if rerr != nil {
		c.closeLocked()
		return rerr
	}
	if resp.Code == 421 {
		c.closeLocked()
		return &Error{Code: CodeConnection, Message: "Server terminating connection", Response: resp.Raw, ResponseCode: resp.Code, Command: "CONN"}
	}
	if resp.Code != 220 {
		c.closeLocked()
		return &Error{Code: CodeProtocol, Message: "Invalid greeting", Response: resp.Raw, ResponseCode: resp.Code, Command: "CONN"}
	}
	c.greeting = resp.Text()
	c.stage = StageGreeted

	if err := c.hello(); err != nil {
		c.closeLocked()
		return err
	}

	if !c.secure && !c.cfg.IgnoreTLS && (c.caps.Has(ExtSTARTTLS) || c.cfg.RequireTLS) {
		if err := c.starttls(ctx); err != nil {
			c.closeLocked()
			return err
		}
	}

	c.stage = StageReady
	c.log.Info("connection ready",
		slog.Bool("esmtp", c.caps.ESMTP),
		slog.Bool("secure", c.secure),
		slog.Int64("max_size", c.caps.MaxSize),
	)
	return nil
}

// dial opens the raw transport: direct, via SOCKS5, with implicit TLS
// or both.
func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	address := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))

	dialer := &net.Dialer{Timeout: c.cfg.ConnectTimeout}
	if c.cfg.LocalAddr != "" {
		laddr, err := resolveLocalAddr(c.cfg.LocalAddr)
		if err != nil {
			return nil, newError(CodeConnection, "invalid local address: %v", err)
		}
		dialer.LocalAddr = laddr
	}

	var conn net.Conn
	var err error
	switch {
	case c.cfg.ProxyURL != "":
		conn, err = c.dialProxy(ctx, dialer, address)
		if err == nil && c.cfg.Secure {
			tlsConn := tls.Client(conn, c.tlsConfig())
			if herr := tlsConn.HandshakeContext(ctx); herr != nil {
				conn.Close()
				return nil, &Error{Code: CodeTLS, Message: "TLS handshake failed: " + herr.Error(), Command: "CONN"}
			}
			conn = tlsConn
		}
	case c.cfg.Secure:
		td := &tls.Dialer{NetDialer: dialer, Config: c.tlsConfig()}
		conn, err = td.DialContext(ctx, "tcp", address)
	default:
		conn, err = dialer.DialContext(ctx, "tcp", address)
	}
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return nil, &Error{Code: CodeTimeout, Message: "Connection timed out", Command: "CONN"}
		}
		return nil, &Error{Code: CodeConnection, Message: err.Error(), Command: "CONN"}
	}
	return conn, nil
}

func (c *Client) dialProxy(ctx context.Context, dialer *net.Dialer, address string) (net.Conn, error) {
	u, err := url.Parse(c.cfg.ProxyURL)
	if err != nil {
		return nil, newError(CodeConnection, "invalid proxy url: %v", err)
	}
	pd, err := proxy.FromURL(u, dialer)
	if err != nil {
		return nil, newError(CodeConnection, "proxy setup failed: %v", err)
	}
	if cd, ok := pd.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, "tcp", address)
	}
	return pd.Dial("tcp", address)
}

func (c *Client) tlsConfig() *tls.Config {
	cfg := c.cfg.TLSConfig
	if cfg == nil {
		cfg = &tls.Config{}
	}
	if cfg.ServerName == "" {
		cfg = cfg.Clone()
		cfg.ServerName = c.cfg.Host
	}
	return cfg
}

// setStream rebinds the framing layer to conn. Called on connect and
// again after the STARTTLS upgrade; the previous reader and writer are
// abandoned with the plaintext view of the socket.
func (c *Client) setStream(conn net.Conn) {
	c.in = wire.NewReader(conn)
	c.out = wire.NewWriter(conn)
	if c.cfg.Debug {
		c.in.Trace = func(line string) { c.log.Debug("S: " + line) }
		c.out.Trace = func(line string) { c.log.Debug("C: " + line) }
	}
}

// hello negotiates EHLO (LHLO for LMTP) with HELO fallback, and
// rebuilds the capability registry.
func (c *Client) hello() error {
	verb := "EHLO"
	if c.cfg.LMTP {
		verb = "LHLO"
	}

	resp, err := c.roundtrip(verb, "%s %s", verb, c.cfg.Name)
	if err != nil {
		return err
	}
	if resp.IsSuccess() {
		c.caps = parseCapabilities(resp.Lines)
		return nil
	}
	if resp.Code == 421 {
		return &Error{Code: CodeConnection, Message: "Server terminating connection", Response: resp.Raw, ResponseCode: resp.Code, Command: verb}
	}
	if c.cfg.LMTP || c.cfg.RequireTLS {
		// LHLO has no fallback; requireTLS forbids downgrading to a
		// server that cannot do STARTTLS anyway.
		return &Error{Code: CodeProtocol, Message: "Invalid " + verb + " response", Response: resp.Raw, ResponseCode: resp.Code, Command: verb}
	}

	resp, err = c.roundtrip("HELO", "HELO %s", c.cfg.Name)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return &Error{Code: CodeProtocol, Message: "Invalid HELO response", Response: resp.Raw, ResponseCode: resp.Code, Command: "HELO"}
	}
	c.caps = &Capabilities{Extensions: map[Extension]string{}}
	return nil
}

// starttls runs the mid-stream upgrade: STARTTLS command, handshake on
// the same socket, then a fresh EHLO on the encrypted stream.
func (c *Client) starttls(ctx context.Context) error {
	resp, err := c.roundtrip("STARTTLS", "STARTTLS")
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		if c.cfg.OpportunisticTLS {
			c.log.Info("starttls refused, continuing in plaintext",
				slog.Int("code", resp.Code))
			return nil
		}
		return &Error{Code: CodeTLS, Message: "STARTTLS refused", Response: resp.Raw, ResponseCode: resp.Code, Command: "STARTTLS"}
	}

	// After the 220 no more bytes may cross in plaintext. The TLS
	// client takes over the socket; reader and writer are rebound to
	// the encrypted stream.
	tlsConn := tls.Client(c.conn, c.tlsConfig())
	hctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()
	if err := tlsConn.HandshakeContext(hctx); err != nil {
		return &Error{Code: CodeTLS, Message: "TLS handshake failed: " + err.Error(), Command: "STARTTLS"}
	}
	c.conn = tlsConn
	c.secure = true
	c.setStream(tlsConn)
	c.log.Debug("connection upgraded to TLS")

	// Capabilities no longer apply; re-negotiate on the new stream.
	c.caps = &Capabilities{Extensions: map[Extension]string{}}
	return c.hello()
}

// roundtrip writes one command and reads its reply. Transport failures
// are fatal: the connection is torn down before the error is returned.
func (c *Client) roundtrip(name, format string, args ...any) (*wire.Response, error) {
	if err := c.out.Cmd(format, args...); err != nil {
		c.closeLocked()
		return nil, wrapError(CodeConnection, name, err)
	}
	if err := c.out.Flush(); err != nil {
		c.closeLocked()
		return nil, wrapError(CodeConnection, name, err)
	}
	return c.readResponse(name, c.cfg.SocketTimeout)
}

// readResponse reads one framed reply under a deadline and records the
// command metric. Read failures (timeouts, unexpected close, malformed
// replies) leave the protocol out of sync, so they close the
// connection.
func (c *Client) readResponse(cmd string, timeout time.Duration) (*wire.Response, error) {
	start := time.Now()
	if timeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(timeout))
	}
	resp, err := c.in.ReadResponse()
	if err != nil {
		observeCommand(cmd, 0, start)
		rerr := c.readError(cmd, err)
		c.closeLocked()
		return nil, rerr
	}
	observeCommand(cmd, resp.Code, start)
	return resp, nil
}

func (c *Client) readError(cmd string, err error) *Error {
	var nerr net.Error
	switch {
	case errors.As(err, &nerr) && nerr.Timeout():
		return &Error{Code: CodeTimeout, Message: "Timeout waiting for server response", Command: cmd}
	case errors.Is(err, wire.ErrMalformedReply):
		return &Error{Code: CodeProtocol, Message: err.Error(), Command: cmd}
	default:
		return &Error{Code: CodeConnection, Message: "Connection closed unexpectedly", Command: cmd}
	}
}

// Reset issues RSET and clears any transaction state on the server. A
// non-2xx reply is a protocol error.
func (c *Client) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireReady(); err != nil {
		return err
	}
	resp, err := c.roundtrip("RSET", "RSET")
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return &Error{Code: CodeProtocol, Message: "RSET failed", Response: resp.Raw, ResponseCode: resp.Code, Command: "RSET"}
	}
	return nil
}

// Noop issues NOOP, typically to keep a pooled connection alive.
func (c *Client) Noop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireReady(); err != nil {
		return err
	}
	resp, err := c.roundtrip("NOOP", "NOOP")
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return &Error{Code: CodeProtocol, Message: "NOOP failed", Response: resp.Raw, ResponseCode: resp.Code, Command: "NOOP"}
	}
	return nil
}

// Quit performs a polite shutdown: QUIT, a best-effort read of the 221
// reply, then transport teardown.
func (c *Client) Quit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	if c.conn != nil {
		if err := c.out.Cmd("QUIT"); err == nil && c.out.Flush() == nil {
			// The reply is read so the server sees an orderly
			// close, but its content no longer matters.
			c.readResponse("QUIT", c.cfg.SocketTimeout)
		}
	}
	return c.closeLocked()
}

// Close tears the connection down immediately. It is idempotent and
// safe at any stage.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Client) closeLocked() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.stage = StageClosed

	var err error
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
	}
	c.log.Debug("connection closed")
	return err
}

func (c *Client) requireReady() error {
	if c.closed {
		return ErrClientClosed
	}
	if c.conn == nil {
		return ErrNoConnection
	}
	if c.stage != StageReady {
		return ErrNotReady
	}
	return nil
}

func resolveLocalAddr(addr string) (*net.TCPAddr, error) {
	if ip := net.ParseIP(addr); ip != nil {
		return &net.TCPAddr{IP: ip}, nil
	}
	laddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", addr, err)
	}
	return laddr, nil
}

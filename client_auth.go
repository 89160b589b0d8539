package corvus

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	gosasl "github.com/emersion/go-sasl"

	"github.com/corvuslabs/corvus/sasl"
)

// xoauthBackoff returns the wait before the single XOAUTH2 retry:
// random between 1 and 5 seconds. Overridden in tests.
var xoauthBackoff = func() time.Duration {
	return time.Duration(1000+rand.IntN(4001)) * time.Millisecond
}

// TokenSource supplies OAuth2 access tokens. Token returns the current
// token; Refresh obtains a fresh one after a rejected attempt.
type TokenSource interface {
	Token() (string, error)
	Refresh() (string, error)
}

// XOAuth2 holds XOAUTH2 credentials: either a static access token or a
// dynamic token source. Static tokens are never retried.
type XOAuth2 struct {
	AccessToken string
	TokenSource TokenSource
}

// Auth holds the credentials for one Login call.
type Auth struct {
	User string
	Pass string

	// Method overrides mechanism selection for this call.
	Method string

	// Domain and Workstation select NTLM, which servers do not
	// advertise.
	Domain      string
	Workstation string

	// OAuth selects XOAUTH2 when the server advertises it.
	OAuth *XOAuth2
}

// Login authenticates the connection. The mechanism is chosen from the
// explicit override, the credential shape and the advertised AUTH list,
// in that order of precedence.
func (c *Client) Login(ctx context.Context, a *Auth) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireReady(); err != nil {
		return err
	}
	if a == nil {
		return newError(CodeAuth, "no credentials provided")
	}

	method := c.selectMechanism(a)

	var token string
	if method == "XOAUTH2" {
		if a.OAuth == nil {
			return newError(CodeAuth, "XOAUTH2 requested without OAuth credentials")
		}
		token = a.OAuth.AccessToken
		if a.OAuth.TokenSource != nil {
			t, err := a.OAuth.TokenSource.Token()
			if err != nil {
				return newError(CodeAuth, "token source failed: %v", err)
			}
			token = t
		}
	}

	mech, err := c.newMechanism(method, a, token)
	if err != nil {
		return err
	}

	aerr := c.authenticate(method, mech)
	if aerr != nil && method == "XOAUTH2" && a.OAuth != nil && a.OAuth.TokenSource != nil && isAuthError(aerr) {
		// The token may simply have expired. Back off briefly, mint
		// a fresh one and try exactly once more.
		wait := xoauthBackoff()
		c.log.Debug("xoauth2 rejected, retrying with fresh token",
			slog.Duration("wait", wait))
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return newError(CodeAuth, "authentication cancelled: %v", ctx.Err())
		}

		t, terr := a.OAuth.TokenSource.Refresh()
		if terr != nil {
			return newError(CodeAuth, "token refresh failed: %v", terr)
		}
		aerr = c.authenticate(method, sasl.NewXOAuth2Client(a.User, t))
	}
	if aerr != nil {
		return aerr
	}

	c.authenticated = true
	c.log.Info("authenticated", slog.String("mechanism", method), slog.String("user", a.User))
	return nil
}

// selectMechanism applies the selection priority: explicit override,
// XOAUTH2 when offered and advertised, NTLM when a domain is supplied,
// first advertised mechanism, PLAIN.
func (c *Client) selectMechanism(a *Auth) string {
	if a.Method != "" {
		return strings.ToUpper(a.Method)
	}
	if c.cfg.AuthMethod != "" {
		return strings.ToUpper(c.cfg.AuthMethod)
	}
	if a.OAuth != nil && c.caps.SupportsAuth("XOAUTH2") {
		return "XOAUTH2"
	}
	if a.Domain != "" {
		return "NTLM"
	}
	if len(c.caps.Auth) > 0 {
		return c.caps.Auth[0]
	}
	return "PLAIN"
}

func (c *Client) newMechanism(method string, a *Auth, token string) (gosasl.Client, error) {
	switch method {
	case "PLAIN":
		// Empty authorization identity for broad server
		// compatibility.
		return gosasl.NewPlainClient("", a.User, a.Pass), nil
	case "LOGIN":
		return sasl.NewLoginClient(a.User, a.Pass), nil
	case "CRAM-MD5":
		return sasl.NewCramMD5Client(a.User, a.Pass), nil
	case "XOAUTH2":
		return sasl.NewXOAuth2Client(a.User, token), nil
	case "NTLM":
		return sasl.NewNTLMClient(a.User, a.Pass, a.Domain, a.Workstation), nil
	}
	return nil, newError(CodeAuth, "unknown authentication method %q", method)
}

// authenticate drives one SASL exchange: AUTH command with optional
// initial response, then challenge/response rounds until the server
// settles on 235 or a failure code.
func (c *Client) authenticate(method string, mech gosasl.Client) error {
	mechName, ir, err := mech.Start()
	if err != nil {
		return newError(CodeAuth, "authentication setup failed: %v", err)
	}

	cmd := "AUTH " + mechName
	if len(ir) > 0 {
		cmd += " " + base64.StdEncoding.EncodeToString(ir)
	}
	if err := c.out.SecretCmd(cmd); err != nil {
		c.closeLocked()
		return wrapError(CodeConnection, "AUTH", err)
	}
	if err := c.out.Flush(); err != nil {
		c.closeLocked()
		return wrapError(CodeConnection, "AUTH", err)
	}

	for {
		resp, rerr := c.readResponse("AUTH", c.cfg.SocketTimeout)
		if rerr != nil {
			return rerr
		}

		switch {
		case resp.Code == 235:
			return nil

		case resp.Code == 334:
			text := strings.TrimSpace(resp.Text())
			// Some servers echo the mechanism name before the
			// challenge payload.
			text = strings.TrimPrefix(text, mechName+" ")
			challenge, derr := base64.StdEncoding.DecodeString(text)
			if derr != nil {
				return &Error{Code: CodeAuth, Message: "Invalid challenge encoding", Response: resp.Raw, ResponseCode: resp.Code, Command: "AUTH " + method}
			}
			answer, merr := mech.Next(challenge)
			if merr != nil {
				return &Error{Code: CodeAuth, Message: merr.Error(), Response: resp.Raw, ResponseCode: resp.Code, Command: "AUTH " + method}
			}
			if err := c.out.SecretCmd(base64.StdEncoding.EncodeToString(answer)); err != nil {
				c.closeLocked()
				return wrapError(CodeConnection, "AUTH", err)
			}
			if err := c.out.Flush(); err != nil {
				c.closeLocked()
				return wrapError(CodeConnection, "AUTH", err)
			}

		default:
			return &Error{Code: CodeAuth, Message: "Invalid login", Response: resp.Raw, ResponseCode: resp.Code, Command: "AUTH " + method}
		}
	}
}

func isAuthError(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == CodeAuth
}

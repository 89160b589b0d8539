package corvus

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"
)

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func TestLoginPlain(t *testing.T) {
	cfg, wait := serve(t, func(s *session) {
		s.ehlo("x.test", "AUTH PLAIN LOGIN")
		s.expect("AUTH PLAIN " + b64("\x00user\x00pass"))
		s.send("235 2.7.0 accepted")
		s.expect("QUIT")
		s.send("221 bye")
	})

	c := connect(t, cfg)
	if err := c.Login(context.Background(), &Auth{User: "user", Pass: "pass"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if !c.Authenticated() {
		t.Error("client not marked authenticated")
	}
	c.Quit()
	wait()
}

func TestLoginLoginMechanism(t *testing.T) {
	cfg, wait := serve(t, func(s *session) {
		s.ehlo("x.test", "AUTH LOGIN")
		s.expect("AUTH LOGIN")
		s.send("334 VXNlcm5hbWU6")
		s.expect(b64("user"))
		s.send("334 UGFzc3dvcmQ6")
		s.expect(b64("pass"))
		s.send("235 welcome")
		s.expect("QUIT")
		s.send("221 bye")
	})

	c := connect(t, cfg)
	if err := c.Login(context.Background(), &Auth{User: "user", Pass: "pass"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	c.Quit()
	wait()
}

func TestLoginRejectsBogusLoginChallenge(t *testing.T) {
	cfg, wait := serve(t, func(s *session) {
		s.ehlo("x.test", "AUTH LOGIN")
		s.expect("AUTH LOGIN")
		s.send("334 " + b64("Gimme your password:"))
	})

	c := connect(t, cfg)
	e := asEngineError(t, c.Login(context.Background(), &Auth{User: "user", Pass: "pass"}))
	if e.Code != CodeAuth {
		t.Errorf("code = %s, want EAUTH", e.Code)
	}
	c.Close()
	wait()
}

func TestLoginCramMD5(t *testing.T) {
	cfg, wait := serve(t, func(s *session) {
		s.ehlo("x.test", "AUTH CRAM-MD5")
		s.expect("AUTH CRAM-MD5")
		s.send("334 PDEyMzQ1QGV4YW1wbGUuY29tPg==")
		s.expect(b64("tim 4ce92cc686dc5f572483571800a669fe"))
		s.send("235 verified")
		s.expect("QUIT")
		s.send("221 bye")
	})

	c := connect(t, cfg)
	if err := c.Login(context.Background(), &Auth{User: "tim", Pass: "tanstaaftanstaaf"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	c.Quit()
	wait()
}

func TestLoginFailureSurfacesResponse(t *testing.T) {
	cfg, wait := serve(t, func(s *session) {
		s.ehlo("x.test", "AUTH PLAIN")
		s.expectPrefix("AUTH PLAIN ")
		s.send("535 5.7.8 bad credentials")
	})

	c := connect(t, cfg)
	e := asEngineError(t, c.Login(context.Background(), &Auth{User: "user", Pass: "wrong"}))
	if e.Code != CodeAuth {
		t.Errorf("code = %s, want EAUTH", e.Code)
	}
	if e.ResponseCode != 535 {
		t.Errorf("response code = %d", e.ResponseCode)
	}
	if c.Authenticated() {
		t.Error("client marked authenticated after failure")
	}
	c.Close()
	wait()
}

func TestLoginMechanismSelectionOrder(t *testing.T) {
	// First advertised mechanism wins when nothing else decides.
	cfg, wait := serve(t, func(s *session) {
		s.ehlo("x.test", "AUTH CRAM-MD5 PLAIN")
		s.expect("AUTH CRAM-MD5")
		s.send("334 " + b64("<x@y>"))
		s.expectPrefix("")
		s.send("235 done")
		s.expect("QUIT")
		s.send("221 bye")
	})

	c := connect(t, cfg)
	if err := c.Login(context.Background(), &Auth{User: "u", Pass: "p"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	c.Quit()
	wait()
}

func TestLoginMethodOverride(t *testing.T) {
	cfg, wait := serve(t, func(s *session) {
		s.ehlo("x.test", "AUTH CRAM-MD5 PLAIN")
		s.expect("AUTH PLAIN " + b64("\x00u\x00p"))
		s.send("235 done")
		s.expect("QUIT")
		s.send("221 bye")
	})

	c := connect(t, cfg)
	if err := c.Login(context.Background(), &Auth{User: "u", Pass: "p", Method: "plain"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	c.Quit()
	wait()
}

type staticTokens struct {
	tokens  []string
	refresh int
}

func (s *staticTokens) Token() (string, error) { return s.tokens[0], nil }

func (s *staticTokens) Refresh() (string, error) {
	s.refresh++
	return s.tokens[1], nil
}

func TestLoginXOAuth2(t *testing.T) {
	cfg, wait := serve(t, func(s *session) {
		s.ehlo("x.test", "AUTH PLAIN XOAUTH2")
		s.expect("AUTH XOAUTH2 " + b64("user=u@x\x01auth=Bearer tok1\x01\x01"))
		s.send("235 ok")
		s.expect("QUIT")
		s.send("221 bye")
	})

	c := connect(t, cfg)
	auth := &Auth{User: "u@x", OAuth: &XOAuth2{AccessToken: "tok1"}}
	if err := c.Login(context.Background(), auth); err != nil {
		t.Fatalf("login: %v", err)
	}
	c.Quit()
	wait()
}

func TestLoginXOAuth2RetryWithFreshToken(t *testing.T) {
	restore := xoauthBackoff
	xoauthBackoff = func() time.Duration { return time.Millisecond }
	defer func() { xoauthBackoff = restore }()

	cfg, wait := serve(t, func(s *session) {
		s.ehlo("x.test", "AUTH XOAUTH2")
		s.expect("AUTH XOAUTH2 " + b64("user=u@x\x01auth=Bearer stale\x01\x01"))
		// Error challenge: the client must answer with an empty line.
		s.send("334 " + b64(`{"status":"401"}`))
		s.expect("")
		s.send("535 5.7.8 token expired")
		// Second attempt with the refreshed token.
		s.expect("AUTH XOAUTH2 " + b64("user=u@x\x01auth=Bearer fresh\x01\x01"))
		s.send("235 ok")
		s.expect("QUIT")
		s.send("221 bye")
	})

	c := connect(t, cfg)
	src := &staticTokens{tokens: []string{"stale", "fresh"}}
	if err := c.Login(context.Background(), &Auth{User: "u@x", OAuth: &XOAuth2{TokenSource: src}}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if src.refresh != 1 {
		t.Errorf("refresh called %d times, want 1", src.refresh)
	}
	c.Quit()
	wait()
}

func TestLoginXOAuth2StaticTokenNeverRetries(t *testing.T) {
	cfg, wait := serve(t, func(s *session) {
		s.ehlo("x.test", "AUTH XOAUTH2")
		s.expectPrefix("AUTH XOAUTH2 ")
		s.send("334 " + b64(`{"status":"401"}`))
		s.expect("")
		s.send("535 nope")
	})

	c := connect(t, cfg)
	e := asEngineError(t, c.Login(context.Background(), &Auth{User: "u@x", OAuth: &XOAuth2{AccessToken: "stale"}}))
	if e.Code != CodeAuth {
		t.Errorf("code = %s, want EAUTH", e.Code)
	}
	c.Close()
	wait()
}

func TestLoginNilAuth(t *testing.T) {
	cfg, wait := serve(t, func(s *session) {
		s.ehlo("x.test", "AUTH PLAIN")
	})

	c := connect(t, cfg)
	err := c.Login(context.Background(), nil)
	e := asEngineError(t, err)
	if e.Code != CodeAuth {
		t.Errorf("code = %s, want EAUTH", e.Code)
	}
	if errors.Is(err, ErrClientClosed) {
		t.Error("nil auth must not close the client")
	}
	c.Close()
	wait()
}

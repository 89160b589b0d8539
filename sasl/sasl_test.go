package sasl

import (
	"encoding/base64"
	"testing"
)

func TestLoginExchange(t *testing.T) {
	l := NewLoginClient("tim", "hunter2")

	mech, ir, err := l.Start()
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if mech != "LOGIN" {
		t.Errorf("mechanism = %q, want LOGIN", mech)
	}
	if ir != nil {
		t.Errorf("unexpected initial response %q", ir)
	}

	resp, err := l.Next([]byte("Username:"))
	if err != nil {
		t.Fatalf("username challenge: %v", err)
	}
	if string(resp) != "tim" {
		t.Errorf("username response = %q", resp)
	}

	resp, err = l.Next([]byte("Password:"))
	if err != nil {
		t.Fatalf("password challenge: %v", err)
	}
	if string(resp) != "hunter2" {
		t.Errorf("password response = %q", resp)
	}
}

func TestLoginRejectsUnknownChallenge(t *testing.T) {
	l := NewLoginClient("tim", "hunter2")
	l.Start()
	if _, err := l.Next([]byte("Who goes there?")); err != ErrUnexpectedChallenge {
		t.Errorf("err = %v, want ErrUnexpectedChallenge", err)
	}
}

func TestCramMD5KnownVector(t *testing.T) {
	challengeB64 := "PDEyMzQ1QGV4YW1wbGUuY29tPg=="
	challenge, err := base64.StdEncoding.DecodeString(challengeB64)
	if err != nil {
		t.Fatal(err)
	}
	if string(challenge) != "<12345@example.com>" {
		t.Fatalf("decoded challenge = %q", challenge)
	}

	c := NewCramMD5Client("tim", "tanstaaftanstaaf")
	mech, _, err := c.Start()
	if err != nil {
		t.Fatal(err)
	}
	if mech != "CRAM-MD5" {
		t.Errorf("mechanism = %q", mech)
	}

	resp, err := c.Next(challenge)
	if err != nil {
		t.Fatal(err)
	}
	want := "tim 4ce92cc686dc5f572483571800a669fe"
	if string(resp) != want {
		t.Errorf("response = %q, want %q", resp, want)
	}
}

func TestXOAuth2InitialResponse(t *testing.T) {
	x := NewXOAuth2Client("user@example.com", "vF9dft4qmTc2Nvb3RlckBhdHRhdmlzdGEuY29tCg==")
	mech, ir, err := x.Start()
	if err != nil {
		t.Fatal(err)
	}
	if mech != "XOAUTH2" {
		t.Errorf("mechanism = %q", mech)
	}

	// Decoding the emitted credential must yield the documented shape.
	want := "user=user@example.com\x01auth=Bearer vF9dft4qmTc2Nvb3RlckBhdHRhdmlzdGEuY29tCg==\x01\x01"
	if string(ir) != want {
		t.Errorf("initial response = %q, want %q", ir, want)
	}

	// Error challenges are acknowledged with an empty response.
	resp, err := x.Next([]byte(`{"status":"401"}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(resp) != 0 {
		t.Errorf("challenge response = %q, want empty", resp)
	}
}

func TestXOAuth2RequiresToken(t *testing.T) {
	x := NewXOAuth2Client("user@example.com", "")
	if _, _, err := x.Start(); err != ErrMissingCredentials {
		t.Errorf("err = %v, want ErrMissingCredentials", err)
	}
}

func TestNTLMNegotiate(t *testing.T) {
	n := NewNTLMClient("user", "pass", "EXAMPLE", "WS01")
	mech, ir, err := n.Start()
	if err != nil {
		t.Fatal(err)
	}
	if mech != "NTLM" {
		t.Errorf("mechanism = %q", mech)
	}
	// Type 1 messages open with the NTLMSSP signature.
	if len(ir) < 8 || string(ir[:7]) != "NTLMSSP" {
		t.Errorf("initial response does not look like a type 1 message: %q", ir)
	}
}

func TestNTLMRejectsChallengeBeforeStart(t *testing.T) {
	n := NewNTLMClient("user", "pass", "EXAMPLE", "")
	if _, err := n.Next([]byte("bogus")); err != ErrUnexpectedChallenge {
		t.Errorf("err = %v, want ErrUnexpectedChallenge", err)
	}
}

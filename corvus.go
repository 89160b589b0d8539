// Package corvus implements an SMTP and LMTP client engine: the
// stateful protocol driver that connects to a mail relay, negotiates
// capabilities, optionally upgrades the stream to TLS, authenticates
// and performs mail transactions over the same connection.
//
// # Quick start
//
//	client := corvus.New(corvus.Config{
//	    Host: "smtp.example.com",
//	    Port: 587,
//	})
//	if err := client.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Quit()
//
//	if err := client.Login(ctx, &corvus.Auth{User: "user", Pass: "pass"}); err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := client.Send(ctx, &corvus.Envelope{
//	    From: "sender@example.com",
//	    To:   []string{"rcpt@example.net"},
//	}, strings.NewReader(message))
//
// Send collects per-recipient verdicts: a transaction only fails when
// every recipient is refused. Partial rejections are reported in
// Result.Rejected and Result.RejectedErrors.
//
// # TLS
//
// Config.Secure selects implicit TLS (port 465). Otherwise STARTTLS is
// used whenever the server advertises it, unless Config.IgnoreTLS is
// set; Config.RequireTLS makes the upgrade mandatory and
// Config.OpportunisticTLS tolerates refusal.
//
// # LMTP
//
// With Config.LMTP the engine greets with LHLO and consumes one DATA
// verdict per accepted recipient, as RFC 2033 requires.
//
// # Errors
//
// Operations return *Error carrying a stable code (ECONNECTION,
// ETIMEDOUT, ETLS, EPROTOCOL, EAUTH, EENVELOPE, EMESSAGE, ESTREAM),
// the offending command and the raw server reply. Calls on a client
// that is closed, not connected or not ready return the sentinel
// errors ErrClientClosed, ErrNoConnection and ErrNotReady instead.
package corvus

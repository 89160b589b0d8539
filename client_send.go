package corvus

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/corvuslabs/corvus/utils"
	"github.com/corvuslabs/corvus/wire"
)

// Send runs one mail transaction: MAIL FROM, RCPT TO for every
// recipient (pipelined when the server allows), DATA and the encoded
// message body. Recipient rejections are collected, not fatal, unless
// every recipient is refused. With Config.EnvelopeOnly the transaction
// stops after the RCPT phase.
func (c *Client) Send(ctx context.Context, env *Envelope, msg io.Reader) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireReady(); err != nil {
		return nil, err
	}
	if env == nil {
		return nil, newError(CodeEnvelope, "no envelope defined")
	}
	if err := env.validate(); err != nil {
		return nil, err
	}
	if msg == nil && !c.cfg.EnvelopeOnly {
		return nil, newError(CodeMessage, "empty message")
	}
	if env.Size > 0 && c.caps.MaxSize > 0 && env.Size > c.caps.MaxSize {
		return nil, &Error{
			Code:    CodeMessage,
			Message: "message exceeds server size limit",
			Command: "MAIL FROM",
		}
	}

	txid := ulid.Make().String()
	log := c.log.With(slog.String("tx", txid))

	usingSMTPUTF8 := env.needsSMTPUTF8() && c.caps.Has(ExtSMTPUTF8)

	envelopeStart := time.Now()
	if err := c.mailFrom(env, usingSMTPUTF8); err != nil {
		return nil, err
	}

	result, lastRcpt, err := c.rcptTo(env, usingSMTPUTF8)
	if err != nil {
		return nil, err
	}
	result.EnvelopeTime = time.Since(envelopeStart)

	if len(result.Accepted) == 0 {
		return nil, &Error{
			Code:           CodeEnvelope,
			Message:        "cannot send message - all recipients were rejected",
			Command:        "RCPT TO",
			Response:       lastRcpt,
			Rejected:       result.Rejected,
			RejectedErrors: result.RejectedErrors,
		}
	}

	if c.cfg.EnvelopeOnly {
		result.Response = lastRcpt
		log.Info("envelope verified",
			slog.Int("accepted", len(result.Accepted)),
			slog.Int("rejected", len(result.Rejected)),
		)
		return result, nil
	}

	if err := c.data(msg, result, log); err != nil {
		return nil, err
	}

	log.Info("message sent",
		slog.Int("accepted", len(result.Accepted)),
		slog.Int("rejected", len(result.Rejected)),
		slog.Int64("size", result.MessageSize),
		slog.Duration("envelope_time", result.EnvelopeTime),
		slog.Duration("message_time", result.MessageTime),
	)
	return result, nil
}

// mailFrom issues MAIL FROM with the extension parameters the server
// advertised.
func (c *Client) mailFrom(env *Envelope, usingSMTPUTF8 bool) error {
	var params []string
	if usingSMTPUTF8 {
		params = append(params, "SMTPUTF8")
	}
	if env.Use8BitMIME && c.caps.Has(Ext8BitMIME) {
		params = append(params, "BODY=8BITMIME")
	}
	if env.Size > 0 && c.caps.Has(ExtSize) {
		params = append(params, "SIZE="+strconv.FormatInt(env.Size, 10))
	}
	if env.DSN != nil && c.caps.Has(ExtDSN) {
		if env.DSN.Ret != "" {
			params = append(params, "RET="+strings.ToUpper(env.DSN.Ret))
		}
		if env.DSN.EnvID != "" {
			params = append(params, "ENVID="+env.DSN.EnvID)
		}
	}

	cmd := "MAIL FROM:<" + env.From + ">"
	if len(params) > 0 {
		cmd += " " + strings.Join(params, " ")
	}

	resp, err := c.roundtrip("MAIL", "%s", cmd)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		msg := "mail command failed"
		if resp.Code == 550 && usingSMTPUTF8 && utils.ContainsNonASCII(env.From) {
			msg = "internationalized mailbox name not allowed"
		}
		return &Error{Code: CodeEnvelope, Message: msg, Response: resp.Raw, ResponseCode: resp.Code, Command: "MAIL FROM"}
	}
	return nil
}

// rcptTo fans the recipient list out. With PIPELINING every RCPT
// command is buffered before the batch is flushed in one write, and
// the replies are consumed in the same order afterwards.
func (c *Client) rcptTo(env *Envelope, usingSMTPUTF8 bool) (*Result, string, error) {
	result := &Result{}
	var lastRaw string

	commands := make([]string, len(env.To))
	for i, rcpt := range env.To {
		commands[i] = c.rcptCommand(env, rcpt)
	}

	collect := func(rcpt string, resp *wire.Response) {
		lastRaw = resp.Raw
		if resp.IsSuccess() {
			result.Accepted = append(result.Accepted, rcpt)
			return
		}
		result.Rejected = append(result.Rejected, rcpt)
		result.RejectedErrors = append(result.RejectedErrors, rcptError(rcpt, resp, usingSMTPUTF8))
	}

	if c.caps.Has(ExtPipelining) {
		for _, cmd := range commands {
			if err := c.out.Cmd("%s", cmd); err != nil {
				c.closeLocked()
				return nil, "", wrapError(CodeConnection, "RCPT TO", err)
			}
		}
		if err := c.out.Flush(); err != nil {
			c.closeLocked()
			return nil, "", wrapError(CodeConnection, "RCPT TO", err)
		}
		for _, rcpt := range env.To {
			resp, err := c.readResponse("RCPT", c.cfg.SocketTimeout)
			if err != nil {
				return nil, "", err
			}
			collect(rcpt, resp)
		}
	} else {
		for i, rcpt := range env.To {
			resp, err := c.roundtrip("RCPT", "%s", commands[i])
			if err != nil {
				return nil, "", err
			}
			collect(rcpt, resp)
		}
	}

	return result, lastRaw, nil
}

func (c *Client) rcptCommand(env *Envelope, rcpt string) string {
	cmd := "RCPT TO:<" + rcpt + ">"
	if env.DSN != nil && c.caps.Has(ExtDSN) {
		if len(env.DSN.Notify) > 0 {
			cmd += " NOTIFY=" + strings.ToUpper(strings.Join(env.DSN.Notify, ","))
		}
		if env.DSN.ORcpt != "" {
			cmd += " ORCPT=" + env.DSN.ORcpt
		}
	}
	return cmd
}

func rcptError(rcpt string, resp *wire.Response, usingSMTPUTF8 bool) *Error {
	msg := "recipient rejected"
	if resp.Code == 553 && usingSMTPUTF8 && utils.ContainsNonASCII(rcpt) {
		msg = "internationalized mailbox name not allowed"
	}
	return &Error{
		Code:         CodeEnvelope,
		Message:      msg,
		Response:     resp.Raw,
		ResponseCode: resp.Code,
		Command:      "RCPT TO",
		Recipient:    rcpt,
	}
}

// data streams the message through the dot-stuffing encoder and
// collects the completion: one reply for SMTP, one per accepted
// recipient for LMTP.
func (c *Client) data(msg io.Reader, result *Result, log *slog.Logger) error {
	resp, err := c.roundtrip("DATA", "DATA")
	if err != nil {
		return err
	}
	// Some servers answer 250 instead of 354.
	if !resp.IsSuccess() && !resp.IsIntermediate() {
		return &Error{Code: CodeMessage, Message: "data command failed", Response: resp.Raw, ResponseCode: resp.Code, Command: "DATA"}
	}

	messageStart := time.Now()
	dw := wire.NewDataWriter(c.out.Raw())
	if _, err := io.Copy(dw, msg); err != nil {
		// The body is half-written; the transaction cannot be
		// terminated cleanly.
		c.closeLocked()
		return &Error{Code: CodeStream, Message: "message stream failed: " + err.Error(), Command: "DATA"}
	}
	if err := dw.Close(); err != nil {
		c.closeLocked()
		return wrapError(CodeConnection, "DATA", err)
	}
	if err := c.out.Flush(); err != nil {
		c.closeLocked()
		return wrapError(CodeConnection, "DATA", err)
	}
	result.MessageSize = dw.Out()

	if c.cfg.LMTP {
		if err := c.lmtpCompletion(result); err != nil {
			return err
		}
	} else {
		final, err := c.readResponse("DATA", c.cfg.SocketTimeout)
		if err != nil {
			return err
		}
		if !final.IsSuccess() {
			return &Error{Code: CodeMessage, Message: "message transmission failed", Response: final.Raw, ResponseCode: final.Code, Command: "DATA"}
		}
		result.Response = final.Raw
	}
	result.MessageTime = time.Since(messageStart)

	log.Debug("data phase complete",
		slog.Int64("in_bytes", dw.In()),
		slog.Int64("out_bytes", dw.Out()),
	)
	return nil
}

// lmtpCompletion consumes one DATA verdict per accepted recipient, in
// RCPT order, demoting refused recipients to the rejected set.
func (c *Client) lmtpCompletion(result *Result) error {
	accepted := result.Accepted
	result.Accepted = nil

	var lastRaw string
	for _, rcpt := range accepted {
		resp, err := c.readResponse("DATA", c.cfg.SocketTimeout)
		if err != nil {
			return err
		}
		lastRaw = resp.Raw
		if resp.IsSuccess() {
			result.Accepted = append(result.Accepted, rcpt)
		} else {
			result.Rejected = append(result.Rejected, rcpt)
			result.RejectedErrors = append(result.RejectedErrors, rcptError(rcpt, resp, false))
		}
	}
	result.Response = lastRaw

	if len(result.Accepted) == 0 {
		return &Error{
			Code:           CodeMessage,
			Message:        "message rejected for all recipients",
			Command:        "DATA",
			Response:       lastRaw,
			Rejected:       result.Rejected,
			RejectedErrors: result.RejectedErrors,
		}
	}
	return nil
}

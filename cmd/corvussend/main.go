// Command corvussend submits a message read from stdin to an SMTP or
// LMTP relay described by a YAML configuration file.
//
// Usage:
//
//	corvussend -config relay.yaml -from a@example.com -to b@example.net < message.eml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/corvuslabs/corvus"
)

type recipientList []string

func (r *recipientList) String() string { return strings.Join(*r, ",") }

func (r *recipientList) Set(v string) error {
	*r = append(*r, v)
	return nil
}

func main() {
	var to recipientList
	configPath := flag.String("config", "relay.yaml", "Path to configuration file")
	from := flag.String("from", "", "Envelope sender address")
	envelopeOnly := flag.Bool("envelope-only", false, "Verify the envelope without sending DATA")
	flag.Var(&to, "to", "Envelope recipient (repeatable)")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fatal("load configuration: %v", err)
	}
	if *from == "" || len(to) == 0 {
		fatal("both -from and at least one -to are required")
	}

	level := slog.LevelInfo
	if cfg.LogLevel == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	client := corvus.New(corvus.Config{
		Host:             cfg.Host,
		Port:             cfg.Port,
		Secure:           cfg.Secure,
		IgnoreTLS:        cfg.IgnoreTLS,
		RequireTLS:       cfg.RequireTLS,
		OpportunisticTLS: cfg.OpportunisticTLS,
		LMTP:             cfg.LMTP,
		Name:             cfg.Name,
		LocalAddr:        cfg.LocalAddr,
		ProxyURL:         cfg.ProxyURL,
		AuthMethod:       cfg.AuthMethod,
		EnvelopeOnly:     *envelopeOnly,
		Logger:           logger,
		Debug:            level == slog.LevelDebug,
	})

	ctx := context.Background()
	if err := client.Connect(ctx); err != nil {
		fatal("connect: %v", err)
	}
	defer client.Quit()

	if cfg.Username != "" || cfg.Domain != "" {
		auth := &corvus.Auth{
			User:        cfg.Username,
			Pass:        cfg.Password,
			Domain:      cfg.Domain,
			Workstation: cfg.Workstation,
		}
		if err := client.Login(ctx, auth); err != nil {
			fatal("login: %v", err)
		}
	}

	result, err := client.Send(ctx, &corvus.Envelope{From: *from, To: to}, os.Stdin)
	if err != nil {
		fatal("send: %v", err)
	}

	for _, rcpt := range result.Accepted {
		fmt.Printf("accepted\t%s\n", rcpt)
	}
	for i, rcpt := range result.Rejected {
		fmt.Printf("rejected\t%s\t%s\n", rcpt, result.RejectedErrors[i].Response)
	}
	logger.Info("done",
		slog.Int("accepted", len(result.Accepted)),
		slog.Int("rejected", len(result.Rejected)),
		slog.Int64("size", result.MessageSize),
	)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "corvussend: "+format+"\n", args...)
	os.Exit(1)
}

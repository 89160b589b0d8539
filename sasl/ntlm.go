package sasl

import (
	"github.com/Azure/go-ntlmssp"
)

const (
	ntlmStateNegotiate = iota
	ntlmStateAuthenticate
	ntlmStateDone
)

// NTLMClient implements the NTLM mechanism. Servers do not advertise
// NTLM; it is selected when the caller supplies a Windows domain. The
// type 1/type 3 message formats come from github.com/Azure/go-ntlmssp.
type NTLMClient struct {
	username    string
	password    string
	domain      string
	workstation string
	state       int
}

// NewNTLMClient returns an NTLM mechanism for the given credentials.
func NewNTLMClient(username, password, domain, workstation string) *NTLMClient {
	return &NTLMClient{
		username:    username,
		password:    password,
		domain:      domain,
		workstation: workstation,
	}
}

// Start sends the type 1 negotiate message as the initial response.
func (n *NTLMClient) Start() (string, []byte, error) {
	msg, err := ntlmssp.NewNegotiateMessage(n.domain, n.workstation)
	if err != nil {
		return "", nil, err
	}
	n.state = ntlmStateAuthenticate
	return "NTLM", msg, nil
}

// Next parses the type 2 challenge and answers with the type 3
// authenticate message.
func (n *NTLMClient) Next(challenge []byte) ([]byte, error) {
	if n.state != ntlmStateAuthenticate {
		return nil, ErrUnexpectedChallenge
	}
	n.state = ntlmStateDone
	return ntlmssp.ProcessChallenge(challenge, n.username, n.password, n.domain != "")
}

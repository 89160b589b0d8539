package sasl

// XOAuth2Client implements the XOAUTH2 mechanism used by Gmail and
// Outlook. The access token is sent in the initial response. On
// failure the server issues a 334 challenge carrying a JSON error
// blob; the client must answer with an empty line to collect the
// final reply.
type XOAuth2Client struct {
	username string
	token    string
}

// NewXOAuth2Client returns an XOAUTH2 mechanism for the given user and
// bearer access token.
func NewXOAuth2Client(username, token string) *XOAuth2Client {
	return &XOAuth2Client{username: username, token: token}
}

// Start builds the initial response:
// "user=<user>\x01auth=Bearer <token>\x01\x01".
func (x *XOAuth2Client) Start() (string, []byte, error) {
	if x.token == "" {
		return "", nil, ErrMissingCredentials
	}
	ir := []byte("user=" + x.username + "\x01auth=Bearer " + x.token + "\x01\x01")
	return "XOAUTH2", ir, nil
}

// Next acknowledges an error challenge with an empty response so the
// server delivers its final status.
func (x *XOAuth2Client) Next(challenge []byte) ([]byte, error) {
	return []byte{}, nil
}

package sasl

import (
	"crypto/hmac"
	"crypto/md5"
	"encoding/hex"
)

// CramMD5Client implements the CRAM-MD5 mechanism (RFC 2195). The
// server's challenge is keyed-hashed with the password and returned as
// "username hexdigest".
type CramMD5Client struct {
	username string
	secret   string
}

// NewCramMD5Client returns a CRAM-MD5 mechanism for the given
// credentials.
func NewCramMD5Client(username, secret string) *CramMD5Client {
	return &CramMD5Client{username: username, secret: secret}
}

// Start begins the exchange. CRAM-MD5 sends no initial response.
func (c *CramMD5Client) Start() (string, []byte, error) {
	return "CRAM-MD5", nil, nil
}

// Next answers the server's challenge.
func (c *CramMD5Client) Next(challenge []byte) ([]byte, error) {
	mac := hmac.New(md5.New, []byte(c.secret))
	mac.Write(challenge)
	digest := hex.EncodeToString(mac.Sum(nil))
	return []byte(c.username + " " + digest), nil
}

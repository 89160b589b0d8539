package corvus

import (
	"context"
	"io"
)

// Dialer bundles configuration and credentials for the common
// connect-authenticate-send-quit flow.
type Dialer struct {
	Config Config
	Auth   *Auth
}

// NewDialer returns a Dialer for the given relay.
func NewDialer(host string, port int) *Dialer {
	return &Dialer{Config: Config{Host: host, Port: port}}
}

// Dial connects, negotiates and authenticates a new client. The caller
// owns the returned client and must Quit or Close it.
func (d *Dialer) Dial(ctx context.Context) (*Client, error) {
	client := New(d.Config)
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	if d.Auth != nil {
		if err := client.Login(ctx, d.Auth); err != nil {
			client.Close()
			return nil, err
		}
	}
	return client, nil
}

// DialAndSend runs one complete submission on a fresh connection.
func (d *Dialer) DialAndSend(ctx context.Context, env *Envelope, msg io.Reader) (*Result, error) {
	client, err := d.Dial(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Quit()

	return client.Send(ctx, env, msg)
}

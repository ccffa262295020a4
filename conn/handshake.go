package conn

import (
	"context"
	"fmt"

	"github.com/nodestore/cql/cqlerr"
	"github.com/nodestore/cql/frame"
)

// Credentials carries the optional username/password pair used to
// answer an AUTHENTICATE challenge. A nil Credentials means "no
// credentials supplied"; the handshake fails if the server demands
// authentication anyway.
type Credentials struct {
	Username string
	Password string
}

// approvedAuthClass is the only SASL-less authenticator class this
// driver knows how to answer; anything else fails the handshake (spec
// §4.2 and §9: SASL-style challenge loops are a future extension).
const approvedAuthClass = "org.apache.cassandra.auth.PasswordAuthenticator"

// Handshake drives STARTUP → READY or AUTHENTICATE → (AUTH_RESPONSE →
// AUTH_SUCCESS) on a freshly dialed connection. It does not retry at a
// lower protocol version on its own — cqlerr.IsProtocolMismatch tells
// the caller (the Cluster) whether a downgrade-and-reopen is warranted.
func (c *Connection) Handshake(ctx context.Context, creds *Credentials) error {
	comp, err := c.Enqueue(frame.NewStartupRequest())
	if err != nil {
		return err
	}
	out, err := comp.Wait(ctx)
	if err != nil {
		return err
	}
	if out.Err != nil {
		return out.Err
	}

	switch resp := out.Response.(type) {
	case frame.ReadyResponse:
		return nil
	case frame.AuthenticateResponse:
		return c.authenticate(ctx, resp, creds)
	default:
		return fmt.Errorf("conn: unexpected response to STARTUP: %T", resp)
	}
}

func (c *Connection) authenticate(ctx context.Context, ar frame.AuthenticateResponse, creds *Credentials) error {
	if ar.ClassName != approvedAuthClass {
		return fmt.Errorf("conn: unsupported authenticator class %q", ar.ClassName)
	}
	if c.version < frame.ProtocolV2 {
		return fmt.Errorf("conn: authentication not supported for protocol v%d", c.version)
	}
	if creds == nil {
		return fmt.Errorf("conn: server requires authentication but no credentials were supplied")
	}

	token := frame.PasswordAuthToken(creds.Username, creds.Password)
	comp, err := c.Enqueue(frame.AuthResponseRequest{Token: token})
	if err != nil {
		return err
	}
	out, err := comp.Wait(ctx)
	if err != nil {
		return err
	}
	if out.Err != nil {
		return out.Err
	}
	switch out.Response.(type) {
	case frame.AuthSuccessResponse:
		return nil
	default:
		return fmt.Errorf("conn: unexpected response to AUTH_RESPONSE: %T", out.Response)
	}
}

// IsProtocolMismatch re-exports cqlerr's check for callers in this
// package's client code that only import conn.
func IsProtocolMismatch(err error) bool { return cqlerr.IsProtocolMismatch(err) }

// Package client drives a stock server with scripted requests and checks
// every response against the expected text.
package client

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"time"

	"github.com/efreitasn/stockserver/internal/protocol"
)

// Client sends one request per connection, as the server closes the
// connection after every response.
type Client struct {
	addr   string
	dialer net.Dialer
}

// New creates a Client for the server at addr (host:port).
func New(addr string) *Client {
	return &Client{
		addr:   addr,
		dialer: net.Dialer{Timeout: 5 * time.Second},
	}
}

// Addr returns the server address.
func (c *Client) Addr() string {
	return c.addr
}

// Do sends a request for target and reads the full response. A response
// whose body disagrees with its Content-Length is returned together with
// an error wrapping protocol.ErrContentLength.
func (c *Client) Do(ctx context.Context, target string) (protocol.Response, error) {
	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		if ctx.Err() != nil {
			return protocol.Response{}, ctx.Err()
		}
		return protocol.Response{}, fmt.Errorf("connect to %s: %w", c.addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	// A buy may block server-side indefinitely; only ctx can abandon it.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	if err := protocol.WriteRequest(conn, target, c.addr); err != nil {
		return protocol.Response{}, fmt.Errorf("write request: %w", err)
	}
	resp, err := protocol.ReadResponse(bufio.NewReader(conn))
	if err != nil && ctx.Err() != nil {
		return resp, ctx.Err()
	}
	return resp, err
}

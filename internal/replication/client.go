package replication

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// ErrCatalogMismatch is returned by Dial when the hub serves another catalog.
var ErrCatalogMismatch = errors.New("catalog fingerprint mismatch")

// Client reads the record stream of a Hub.
type Client struct {
	conn  *websocket.Conn
	hello uint64 // seq at handshake; records up to it are cached state
	seq   uint64
}

// Dial connects to url and reads the handshake. An empty fingerprint
// accepts any catalog.
func Dial(ctx context.Context, url, fingerprint string) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}

	var hello Record
	if err := wsjson.Read(ctx, conn, &hello); err != nil {
		conn.CloseNow()
		return nil, fmt.Errorf("reading handshake: %w", err)
	}
	if hello.Kind != KindHello {
		conn.Close(websocket.StatusProtocolError, "expected hello")
		return nil, fmt.Errorf("handshake: unexpected %q record", hello.Kind)
	}
	if fingerprint != "" && hello.Fingerprint != fingerprint {
		conn.Close(websocket.StatusPolicyViolation, "catalog mismatch")
		return nil, fmt.Errorf("local %s, remote %s: %w", fingerprint, hello.Fingerprint, ErrCatalogMismatch)
	}
	return &Client{conn: conn, hello: hello.Seq, seq: hello.Seq}, nil
}

// Next blocks until the next record arrives.
func (c *Client) Next(ctx context.Context) (Record, error) {
	var rec Record
	if err := wsjson.Read(ctx, c.conn, &rec); err != nil {
		return Record{}, err
	}
	if rec.Seq > c.hello {
		if rec.Seq != c.seq+1 {
			slog.Warn("replication gap", "expected", c.seq+1, "got", rec.Seq)
		}
		c.seq = rec.Seq
	}
	return rec, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}

package rpc

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("noderpc.rpc")

// DefaultTimeout bounds a call when the context carries no earlier deadline.
const DefaultTimeout = time.Second

// Link moves whole packets between host and device. ReadPacket must return
// once ctx is done.
type Link interface {
	WritePacket(ctx context.Context, packet []byte) error
	ReadPacket(ctx context.Context) ([]byte, error)
}

// Caller is what generated proxies call through.
type Caller interface {
	Call(ctx context.Context, cmd uint8, args []byte) ([]byte, error)
}

// Client issues one request at a time over a Link and waits for the response
// with the matching request id.
type Client struct {
	link    Link
	timeout time.Duration

	mu     sync.Mutex
	nextID uint16
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout sets the per-call timeout. Zero disables it, leaving only the
// caller's context.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// NewClient wraps link.
func NewClient(link Link, opts ...ClientOption) *Client {
	c := &Client{link: link, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call sends a request and returns the reply payload of an OK response.
// Responses carrying a different request id are late replies to an earlier,
// abandoned call and are discarded.
func (c *Client) Call(ctx context.Context, cmd uint8, args []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if err := c.link.WritePacket(ctx, AppendRequest(nil, id, cmd, args)); err != nil {
		return nil, &TransportError{Command: cmd, Err: err}
	}

	for {
		packet, err := c.link.ReadPacket(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				err = ErrTimeout
			}
			return nil, &TransportError{Command: cmd, Err: err}
		}

		resp, err := ParseResponse(packet)
		if err != nil {
			log.Debugf("discarding undersized packet (%d bytes)", len(packet))
			continue
		}
		if resp.ID != id || resp.Command != cmd {
			log.Debugf("discarding response %d/%d while waiting for %d/%d", resp.ID, resp.Command, id, cmd)
			continue
		}
		if resp.Status != StatusOK {
			return nil, &RPCError{Command: cmd, Status: resp.Status}
		}
		return resp.Payload, nil
	}
}

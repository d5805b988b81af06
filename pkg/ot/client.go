package ot

import (
	"errors"

	"github.com/shiftregister-vg/deltapad/pkg/delta"
)

// ErrNothingPending is returned by ServerAck when no change is in flight.
var ErrNothingPending = errors.New("no change awaiting acknowledgement")

// ClientState is where a Client is in the submit/acknowledge cycle.
type ClientState int

const (
	// Synchronized: every local change has been acknowledged.
	Synchronized ClientState = iota
	// AwaitingConfirm: one change is in flight.
	AwaitingConfirm
	// AwaitingWithBuffer: one change is in flight and more local edits are
	// waiting to be sent after it.
	AwaitingWithBuffer
)

func (s ClientState) String() string {
	switch s {
	case Synchronized:
		return "synchronized"
	case AwaitingConfirm:
		return "awaiting-confirm"
	case AwaitingWithBuffer:
		return "awaiting-with-buffer"
	}
	return "unknown"
}

// Client tracks the edits of one participant that the server has not
// acknowledged yet. At most one change is in flight at a time; edits made
// meanwhile are composed into a buffer. A Client is not safe for concurrent
// use.
type Client struct {
	revision int64
	inflight *delta.Delta
	buffer   *delta.Delta
}

// NewClient returns a synchronized client whose copy is at revision.
func NewClient(revision int64) *Client {
	return &Client{revision: revision}
}

// State returns the current state.
func (c *Client) State() ClientState {
	switch {
	case c.inflight == nil:
		return Synchronized
	case c.buffer == nil:
		return AwaitingConfirm
	}
	return AwaitingWithBuffer
}

// Revision returns the last server revision the client has seen.
func (c *Client) Revision() int64 {
	return c.revision
}

// ApplyLocal records an edit made locally. It reports whether the edit should
// be sent right away; otherwise it is held until the in-flight change is
// acknowledged.
func (c *Client) ApplyLocal(d *delta.Delta) bool {
	switch c.State() {
	case Synchronized:
		c.inflight = d
		return true
	case AwaitingConfirm:
		c.buffer = d
	default:
		c.buffer = c.buffer.Compose(d)
	}
	return false
}

// ApplyServer takes a change made by someone else and returns the delta to
// apply to the local copy. Pending local changes are rebased over it.
func (c *Client) ApplyServer(d *delta.Delta) *delta.Delta {
	c.revision++
	if c.inflight == nil {
		return d
	}
	// the server applied d first, so it wins ties
	inflight := d.Transform(c.inflight, true)
	d = c.inflight.Transform(d, false)
	c.inflight = inflight
	if c.buffer != nil {
		buffer := d.Transform(c.buffer, true)
		d = c.buffer.Transform(d, false)
		c.buffer = buffer
	}
	return d
}

// ServerAck marks the in-flight change as applied by the server. It returns
// the buffered change that should be sent next, or nil.
func (c *Client) ServerAck() (*delta.Delta, error) {
	if c.inflight == nil {
		return nil, ErrNothingPending
	}
	c.revision++
	c.inflight, c.buffer = c.buffer, nil
	return c.inflight, nil
}

// Outgoing returns the in-flight change and the revision it is based on. The
// delta is nil when nothing is in flight.
func (c *Client) Outgoing() (*delta.Delta, int64) {
	return c.inflight, c.revision
}

// TransformCursor maps a position in the server's copy at Revision to the
// local copy, which also has the pending changes applied.
func (c *Client) TransformCursor(index int) int {
	if c.inflight != nil {
		index = c.inflight.TransformPosition(index, false)
	}
	if c.buffer != nil {
		index = c.buffer.TransformPosition(index, false)
	}
	return index
}

package ot

import (
	"errors"
	"testing"

	"github.com/go-playground/assert/v2"

	"github.com/shiftregister-vg/deltapad/pkg/delta"
)

func TestClientStates(t *testing.T) {
	c := NewClient(0)
	assert.Equal(t, c.State(), Synchronized)

	assert.Equal(t, c.ApplyLocal(delta.New().Insert("a", nil)), true)
	assert.Equal(t, c.State(), AwaitingConfirm)

	assert.Equal(t, c.ApplyLocal(delta.New().Retain(1, nil).Insert("b", nil)), false)
	assert.Equal(t, c.State(), AwaitingWithBuffer)
	assert.Equal(t, c.ApplyLocal(delta.New().Retain(2, nil).Insert("c", nil)), false)

	next, err := c.ServerAck()
	assert.Equal(t, err, nil)
	assertDelta(t, next, delta.New().Retain(1, nil).Insert("bc", nil))
	assert.Equal(t, c.State(), AwaitingConfirm)
	assert.Equal(t, c.Revision(), int64(1))

	next, err = c.ServerAck()
	assert.Equal(t, err, nil)
	assert.Equal(t, next == nil, true)
	assert.Equal(t, c.State(), Synchronized)
	assert.Equal(t, c.State().String(), "synchronized")

	_, err = c.ServerAck()
	assert.Equal(t, errors.Is(err, ErrNothingPending), true)
}

// participant is a client together with its local copy of the document.
type participant struct {
	client *Client
	doc    *delta.Delta
}

func (p *participant) edit(d *delta.Delta) bool {
	p.doc = p.doc.Compose(d)
	return p.client.ApplyLocal(d)
}

func (p *participant) receive(d *delta.Delta) {
	p.doc = p.doc.Compose(p.client.ApplyServer(d))
}

func (p *participant) submit(t *testing.T, server *Document) Change {
	t.Helper()
	d, revision := p.client.Outgoing()
	return mustApply(t, server, Change{Revision: revision, Delta: d})
}

func TestClientsConverge(t *testing.T) {
	initial := delta.New().Insert("abc\n", nil)
	server := NewDocument(initial, 0)
	a := &participant{NewClient(0), initial}
	b := &participant{NewClient(0), initial}

	assert.Equal(t, a.edit(delta.New().Retain(3, nil).Insert("X", nil)), true)
	assert.Equal(t, a.edit(delta.New().Insert("<", nil)), false)
	assert.Equal(t, b.edit(delta.New().Retain(1, nil).Delete(1)), true)

	// b reaches the server first
	fromB := b.submit(t, server)
	next, err := b.client.ServerAck()
	assert.Equal(t, err, nil)
	assert.Equal(t, next == nil, true)
	a.receive(fromB.Delta)

	fromA := a.submit(t, server)
	b.receive(fromA.Delta)
	next, err = a.client.ServerAck()
	assert.Equal(t, err, nil)
	assert.Equal(t, next != nil, true)

	fromA = a.submit(t, server)
	b.receive(fromA.Delta)
	next, err = a.client.ServerAck()
	assert.Equal(t, err, nil)
	assert.Equal(t, next == nil, true)

	contents, revision := server.Snapshot()
	assertDelta(t, contents, delta.New().Insert("<acX\n", nil))
	assertDelta(t, a.doc, contents)
	assertDelta(t, b.doc, contents)
	assert.Equal(t, revision, int64(3))
	assert.Equal(t, a.client.Revision(), revision)
	assert.Equal(t, b.client.Revision(), revision)
}

func TestClientTransformCursor(t *testing.T) {
	c := NewClient(0)
	assert.Equal(t, c.TransformCursor(3), 3)

	c.ApplyLocal(delta.New().Insert("ab", nil))
	c.ApplyLocal(delta.New().Retain(4, nil).Delete(1))
	assert.Equal(t, c.TransformCursor(0), 2)
	assert.Equal(t, c.TransformCursor(3), 4)
}

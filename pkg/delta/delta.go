// Package delta implements the rich-text change format used by deltapad.
//
// A Delta is an ordered list of insert, retain and delete ops. A delta made
// only of inserts is a document; any other delta is a change relative to some
// base document. Deltas are kept in a canonical form as they are built: no
// zero-length ops, adjacent compatible ops merged, and inserts placed before
// deletes at the same position.
//
// Compose, Transform, Diff and Invert never modify their inputs, so a Delta
// may be shared between goroutines once it is no longer being built.
package delta

import (
	"fmt"
	"strings"
)

// Delta is a document or a change to a document.
type Delta struct {
	Ops []Op
}

// New builds a normalized delta from ops. It panics on a malformed op; use
// FromOps for ops that come from outside the program.
func New(ops ...Op) *Delta {
	d, err := FromOps(ops)
	if err != nil {
		panic(err)
	}
	return d
}

// FromOps builds a normalized delta from ops, rejecting malformed ones.
func FromOps(ops []Op) (*Delta, error) {
	d := &Delta{Ops: make([]Op, 0, len(ops))}
	for i, op := range ops {
		if err := op.Validate(); err != nil {
			return nil, fmt.Errorf("op %d: %w", i, err)
		}
		d.push(op.clone())
	}
	return d, nil
}

// Insert appends an insert of text. Empty text is ignored.
func (d *Delta) Insert(text string, attrs AttributeMap) *Delta {
	if text == "" {
		return d
	}
	return d.push(InsertOp(text, attrs.Clone()))
}

// InsertEmbed appends an insert of a single embed.
func (d *Delta) InsertEmbed(embed Embed, attrs AttributeMap) *Delta {
	if embed == nil {
		return d
	}
	return d.push(InsertEmbedOp(embed.Clone(), attrs.Clone()))
}

// Retain appends a retain of n positions. Non-positive n is ignored.
func (d *Delta) Retain(n int, attrs AttributeMap) *Delta {
	if n <= 0 {
		return d
	}
	return d.push(RetainOp(n, attrs.Clone()))
}

// RetainEmbed appends a retain of one embed carrying an update to it.
func (d *Delta) RetainEmbed(embed Embed, attrs AttributeMap) *Delta {
	if embed == nil {
		return d
	}
	return d.push(RetainEmbedOp(embed.Clone(), attrs.Clone()))
}

// Delete appends a delete of n positions. Non-positive n is ignored.
func (d *Delta) Delete(n int) *Delta {
	if n <= 0 {
		return d
	}
	return d.push(DeleteOp(n))
}

// Push appends op, merging it into the last op where possible. Zero-length
// ops are ignored. Push panics on any other malformed op.
func (d *Delta) Push(op Op) *Delta {
	switch op.Kind {
	case KindInsert, KindRetain, KindDelete:
		if op.Embed == nil && op.Text == "" && op.N <= 0 {
			return d
		}
	}
	if err := op.Validate(); err != nil {
		panic(err)
	}
	return d.push(op.clone())
}

// push appends op without copying it. Callers guarantee op is well formed
// and that its maps are not modified afterwards.
func (d *Delta) push(op Op) *Delta {
	if op.Len() <= 0 {
		return d
	}
	op.Attributes = normalize(op.Attributes)
	index := len(d.Ops)
	if index == 0 {
		d.Ops = append(d.Ops, op)
		return d
	}
	last := d.Ops[index-1]
	if op.Kind == KindDelete && last.Kind == KindDelete {
		d.Ops[index-1] = DeleteOp(last.N + op.N)
		return d
	}
	// inserting before or after a delete at the same position is the same
	// change; always put the insert first
	if last.Kind == KindDelete && op.Kind == KindInsert {
		index--
		if index == 0 {
			d.Ops = append([]Op{op}, d.Ops...)
			return d
		}
		last = d.Ops[index-1]
	}
	if op.Attributes.Equal(last.Attributes) {
		switch {
		case op.IsTextInsert() && last.IsTextInsert():
			d.Ops[index-1] = Op{Kind: KindInsert, Text: last.Text + op.Text, Attributes: op.Attributes}
			return d
		case op.Kind == KindRetain && last.Kind == KindRetain && op.Embed == nil && last.Embed == nil:
			d.Ops[index-1] = Op{Kind: KindRetain, N: last.N + op.N, Attributes: op.Attributes}
			return d
		}
	}
	if index == len(d.Ops) {
		d.Ops = append(d.Ops, op)
		return d
	}
	d.Ops = append(d.Ops, Op{})
	copy(d.Ops[index+1:], d.Ops[index:])
	d.Ops[index] = op
	return d
}

// Chop removes a trailing retain that carries no attributes, since it changes
// nothing. It modifies d and returns it.
func (d *Delta) Chop() *Delta {
	if n := len(d.Ops); n > 0 {
		last := d.Ops[n-1]
		if last.Kind == KindRetain && last.Embed == nil && len(last.Attributes) == 0 {
			d.Ops = d.Ops[:n-1]
		}
	}
	return d
}

// Concat returns a new delta with the ops of other appended to those of d.
func (d *Delta) Concat(other *Delta) *Delta {
	out := &Delta{Ops: make([]Op, len(d.Ops), len(d.Ops)+len(other.Ops))}
	copy(out.Ops, d.Ops)
	if len(other.Ops) > 0 {
		out.push(other.Ops[0])
		out.Ops = append(out.Ops, other.Ops[1:]...)
	}
	return out
}

// Slice returns the part of d covering positions [start, end). An end below
// zero means the end of the delta.
func (d *Delta) Slice(start, end int) *Delta {
	if end < 0 {
		end = Unbounded
	}
	out := &Delta{}
	iter := NewIterator(d.Ops)
	index := 0
	for index < end && iter.HasNext() {
		var op Op
		if index < start {
			op = iter.Next(start - index)
		} else {
			op = iter.Next(end - index)
			out.push(op)
		}
		index += op.Len()
	}
	return out
}

// Length returns the total length of all ops.
func (d *Delta) Length() int {
	n := 0
	for _, op := range d.Ops {
		n += op.Len()
	}
	return n
}

// ChangeLength returns how much longer the document becomes after applying d.
func (d *Delta) ChangeLength() int {
	n := 0
	for _, op := range d.Ops {
		switch op.Kind {
		case KindInsert:
			n += op.Len()
		case KindDelete:
			n -= op.N
		}
	}
	return n
}

// baseLength returns the length of the document d can be applied to.
func (d *Delta) baseLength() int {
	n := 0
	for _, op := range d.Ops {
		if op.Kind != KindInsert {
			n += op.Len()
		}
	}
	return n
}

// BaseLength returns the minimum length of a document d can be applied to.
func (d *Delta) BaseLength() int {
	return d.baseLength()
}

// IsDocument reports whether d consists only of inserts.
func (d *Delta) IsDocument() bool {
	for _, op := range d.Ops {
		if op.Kind != KindInsert {
			return false
		}
	}
	return true
}

// Equal reports whether d and other hold the same ops in the same order.
func (d *Delta) Equal(other *Delta) bool {
	if len(d.Ops) != len(other.Ops) {
		return false
	}
	for i := range d.Ops {
		if !d.Ops[i].Equal(other.Ops[i]) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of d.
func (d *Delta) Clone() *Delta {
	out := &Delta{Ops: make([]Op, len(d.Ops))}
	for i, op := range d.Ops {
		out.Ops[i] = op.clone()
	}
	return out
}

// Filter returns the ops for which keep returns true.
func (d *Delta) Filter(keep func(op Op, index int) bool) []Op {
	var out []Op
	for i, op := range d.Ops {
		if keep(op, i) {
			out = append(out, op)
		}
	}
	return out
}

// ForEach calls fn for every op in order.
func (d *Delta) ForEach(fn func(op Op, index int)) {
	for i, op := range d.Ops {
		fn(op, i)
	}
}

// Partition splits the ops into those for which pred returns true and the rest.
func (d *Delta) Partition(pred func(op Op) bool) (passed, failed []Op) {
	for _, op := range d.Ops {
		if pred(op) {
			passed = append(passed, op)
		} else {
			failed = append(failed, op)
		}
	}
	return passed, failed
}

// Map returns fn applied to every op of d.
func Map[T any](d *Delta, fn func(op Op, index int) T) []T {
	out := make([]T, 0, len(d.Ops))
	for i, op := range d.Ops {
		out = append(out, fn(op, i))
	}
	return out
}

// Reduce folds the ops of d into a single value.
func Reduce[T any](d *Delta, fn func(acc T, op Op, index int) T, initial T) T {
	acc := initial
	for i, op := range d.Ops {
		acc = fn(acc, op, i)
	}
	return acc
}

func (d *Delta) String() string {
	parts := Map(d, func(op Op, _ int) string { return op.String() })
	return "[" + strings.Join(parts, " ") + "]"
}

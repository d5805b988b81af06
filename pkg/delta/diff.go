package delta

import (
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// embedPlaceholder stands in for an embed when documents are flattened to text.
const embedPlaceholder = '\x00'

type diffOptions struct {
	timeout   time.Duration
	checkLine bool
}

// DiffOption configures Diff.
type DiffOption func(*diffOptions)

// WithDiffTimeout bounds the time spent looking for a minimal diff. Past the
// deadline the result is still correct but may not be minimal. Zero means no
// limit.
func WithDiffTimeout(timeout time.Duration) DiffOption {
	return func(o *diffOptions) {
		o.timeout = timeout
	}
}

// WithLineMode runs a quick line-level pass first, which is faster on large
// documents at some cost in minimality.
func WithLineMode() DiffOption {
	return func(o *diffOptions) {
		o.checkLine = true
	}
}

// Diff returns the change that turns document d into document other. Both
// must consist only of inserts.
func (d *Delta) Diff(other *Delta, opts ...DiffOption) (*Delta, error) {
	oldText, err := flatten(d)
	if err != nil {
		return nil, fmt.Errorf("diff with non-document: %w", err)
	}
	newText, err := flatten(other)
	if err != nil {
		return nil, fmt.Errorf("diff on non-document: %w", err)
	}
	if d == other {
		return &Delta{}, nil
	}

	o := diffOptions{timeout: time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = o.timeout
	diffs := dmp.DiffMainRunes(oldText, newText, o.checkLine)

	out := &Delta{}
	thisIter := NewIterator(d.Ops)
	otherIter := NewIterator(other.Ops)
	for _, component := range diffs {
		length := utf8.RuneCountInString(component.Text)
		for length > 0 {
			var opLength int
			switch component.Type {
			case diffmatchpatch.DiffInsert:
				opLength = min(otherIter.PeekLength(), length)
				out.push(otherIter.Next(opLength))
			case diffmatchpatch.DiffDelete:
				opLength = min(thisIter.PeekLength(), length)
				thisIter.Next(opLength)
				out.push(DeleteOp(opLength))
			case diffmatchpatch.DiffEqual:
				opLength = min(thisIter.PeekLength(), otherIter.PeekLength(), length)
				thisOp := thisIter.Next(opLength)
				otherOp := otherIter.Next(opLength)
				if sameContent(thisOp, otherOp) {
					out.push(RetainOp(opLength, DiffAttributes(thisOp.Attributes, otherOp.Attributes)))
				} else {
					// a placeholder matched a different embed, or text matched one
					out.push(otherOp)
					out.push(DeleteOp(opLength))
				}
			}
			length -= opLength
		}
	}
	return out.Chop(), nil
}

// flatten returns the runes of a document, with every embed as a placeholder.
func flatten(d *Delta) ([]rune, error) {
	var b strings.Builder
	for i, op := range d.Ops {
		if op.Kind != KindInsert {
			return nil, fmt.Errorf("%w: op %d is a %v", ErrNotDocument, i, op.Kind)
		}
		if op.Embed != nil {
			b.WriteRune(embedPlaceholder)
		} else {
			b.WriteString(op.Text)
		}
	}
	return []rune(b.String()), nil
}

func sameContent(a, b Op) bool {
	if a.Embed != nil || b.Embed != nil {
		return reflect.DeepEqual(a.Embed, b.Embed)
	}
	return a.Text == b.Text
}

package delta

import "unicode/utf8"

// Iterator walks a slice of ops and can consume part of the current op
// without touching the slice itself. The algorithms use it to walk two deltas
// whose op boundaries do not line up.
type Iterator struct {
	ops        []Op
	index      int
	offset     int // runes consumed from ops[index]
	byteOffset int // bytes consumed from ops[index].Text
}

// NewIterator returns an Iterator positioned at the first op.
func NewIterator(ops []Op) *Iterator {
	return &Iterator{ops: ops}
}

// HasNext reports whether any length remains.
func (it *Iterator) HasNext() bool {
	return it.index < len(it.ops)
}

// Peek returns the whole current op.
func (it *Iterator) Peek() (Op, bool) {
	if it.index >= len(it.ops) {
		return Op{}, false
	}
	return it.ops[it.index], true
}

// PeekLength returns the remaining length of the current op, or Unbounded
// once the iterator is exhausted.
func (it *Iterator) PeekLength() int {
	if it.index >= len(it.ops) {
		return Unbounded
	}
	return it.ops[it.index].Len() - it.offset
}

// PeekType returns the kind of the current op, or KindEnd once exhausted.
func (it *Iterator) PeekType() Kind {
	if it.index >= len(it.ops) {
		return KindEnd
	}
	return it.ops[it.index].Kind
}

// Next consumes up to maxLength units of the current op and returns them as
// an op of their own. A maxLength of zero or less consumes the rest of the
// current op. Next never crosses an op boundary.
//
// Once exhausted, Next returns a retain of maxLength (or Unbounded) so that
// callers can treat the end of a delta as "keep everything that follows".
func (it *Iterator) Next(maxLength int) Op {
	if maxLength <= 0 {
		maxLength = Unbounded
	}
	if it.index >= len(it.ops) {
		return Op{Kind: KindRetain, N: maxLength}
	}

	op := it.ops[it.index]
	offset, byteOffset := it.offset, it.byteOffset
	length := op.Len() - offset
	whole := maxLength >= length
	if whole {
		it.index++
		it.offset = 0
		it.byteOffset = 0
	} else {
		length = maxLength
		it.offset += length
	}

	switch op.Kind {
	case KindDelete:
		return Op{Kind: KindDelete, N: length}
	case KindRetain:
		if op.Embed != nil {
			return op
		}
		return Op{Kind: KindRetain, N: length, Attributes: op.Attributes}
	}
	if op.Embed != nil {
		return op
	}
	text := op.Text[byteOffset:]
	if !whole {
		end := runeByteOffset(text, length)
		text = text[:end]
		it.byteOffset += end
	}
	return Op{Kind: KindInsert, Text: text, Attributes: op.Attributes}
}

// Rest returns the ops that have not been consumed yet, with the current op
// trimmed to its remaining part. The iterator does not move.
func (it *Iterator) Rest() []Op {
	if !it.HasNext() {
		return nil
	}
	if it.offset == 0 {
		return it.ops[it.index:]
	}
	index, offset, byteOffset := it.index, it.offset, it.byteOffset
	next := it.Next(0)
	rest := make([]Op, 0, len(it.ops)-it.index+1)
	rest = append(rest, next)
	rest = append(rest, it.ops[it.index:]...)
	it.index, it.offset, it.byteOffset = index, offset, byteOffset
	return rest
}

// remainingText returns the unconsumed text of the current op when it is a
// text insert.
func (it *Iterator) remainingText() (string, bool) {
	if it.index >= len(it.ops) || !it.ops[it.index].IsTextInsert() {
		return "", false
	}
	return it.ops[it.index].Text[it.byteOffset:], true
}

// runeByteOffset returns the byte offset of the n-th rune in s.
func runeByteOffset(s string, n int) int {
	i := 0
	for n > 0 && i < len(s) {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
		n--
	}
	return i
}

package delta

// Transform rebases other, a change made concurrently with d against the same
// document, so that it applies after d. With priority, d is considered to
// have happened first: where both insert at the same position, d's insert
// ends up before other's.
//
// For concurrent a and b the results converge:
//
//	a.Compose(a.Transform(b, true)) == b.Compose(b.Transform(a, false))
func (d *Delta) Transform(other *Delta, priority bool) *Delta {
	thisIter := NewIterator(d.Ops)
	otherIter := NewIterator(other.Ops)
	out := &Delta{Ops: make([]Op, 0, len(other.Ops))}

	for thisIter.HasNext() || otherIter.HasNext() {
		if thisIter.PeekType() == KindInsert && (priority || otherIter.PeekType() != KindInsert) {
			out.push(RetainOp(thisIter.Next(0).Len(), nil))
			continue
		}
		if otherIter.PeekType() == KindInsert {
			out.push(otherIter.Next(0))
			continue
		}

		length := min(thisIter.PeekLength(), otherIter.PeekLength())
		thisOp := thisIter.Next(length)
		otherOp := otherIter.Next(length)
		switch {
		case thisOp.Kind == KindDelete:
			// our delete already removed what other deletes or retains
		case otherOp.Kind == KindDelete:
			out.push(otherOp)
		default:
			retained := Op{Kind: KindRetain, N: length}
			if otherOp.Embed != nil {
				retained.N = 0
				retained.Embed = otherOp.Embed
				if thisOp.Embed != nil {
					retained.Embed = transformEmbeds(thisOp.Embed, otherOp.Embed, priority)
					if retained.Embed == nil {
						retained.N = length
					}
				}
			}
			retained.Attributes = TransformAttributes(thisOp.Attributes, otherOp.Attributes, priority)
			out.push(retained)
		}
	}
	return out.Chop()
}

// TransformPosition returns where index ends up after d is applied. With
// priority, an insert exactly at index does not push it forward.
func (d *Delta) TransformPosition(index int, priority bool) int {
	iter := NewIterator(d.Ops)
	offset := 0
	for iter.HasNext() && offset <= index {
		length := iter.PeekLength()
		kind := iter.PeekType()
		iter.Next(0)
		switch kind {
		case KindDelete:
			index -= min(length, index-offset)
			continue
		case KindInsert:
			if offset < index || !priority {
				index += length
			}
		}
		offset += length
	}
	return index
}

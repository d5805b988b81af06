package delta

// Compose returns a delta equivalent to applying d and then other.
func (d *Delta) Compose(other *Delta) *Delta {
	thisIter := NewIterator(d.Ops)
	otherIter := NewIterator(other.Ops)
	out := &Delta{Ops: make([]Op, 0, len(d.Ops)+len(other.Ops))}

	// a leading plain retain in other keeps our leading inserts untouched
	if first, ok := otherIter.Peek(); ok && first.Kind == KindRetain && first.Embed == nil && first.Attributes == nil {
		left := first.N
		for thisIter.PeekType() == KindInsert && thisIter.PeekLength() <= left {
			left -= thisIter.PeekLength()
			out.push(thisIter.Next(0))
		}
		if first.N-left > 0 {
			otherIter.Next(first.N - left)
		}
	}

	for thisIter.HasNext() || otherIter.HasNext() {
		if otherIter.PeekType() == KindInsert {
			out.push(otherIter.Next(0))
			continue
		}
		if thisIter.PeekType() == KindDelete {
			out.push(thisIter.Next(0))
			continue
		}

		length := min(thisIter.PeekLength(), otherIter.PeekLength())
		thisOp := thisIter.Next(length)
		otherOp := otherIter.Next(length)

		switch otherOp.Kind {
		case KindRetain:
			newOp := composeRetain(thisOp, otherOp, length)
			out.push(newOp)

			// the rest of other only retains, so the rest of d passes through
			if !otherIter.HasNext() && len(out.Ops) > 0 && out.Ops[len(out.Ops)-1].Equal(newOp) {
				rest := &Delta{Ops: thisIter.Rest()}
				return out.Concat(rest).Chop()
			}
		case KindDelete:
			// deleting something we inserted cancels both
			if thisOp.Kind == KindRetain {
				out.push(otherOp)
			}
		}
	}
	return out.Chop()
}

// composeRetain resolves other retaining what this produced over length
// positions.
func composeRetain(thisOp, otherOp Op, length int) Op {
	keepNull := thisOp.Kind == KindRetain
	newOp := Op{Kind: thisOp.Kind, Attributes: ComposeAttributes(thisOp.Attributes, otherOp.Attributes, keepNull)}

	switch {
	case thisOp.Kind == KindRetain && thisOp.Embed == nil:
		// a plain retain of ours defers entirely to other
		if otherOp.Embed != nil {
			newOp.Embed = otherOp.Embed
		} else {
			newOp.N = length
		}
	case otherOp.Embed == nil:
		newOp.Text = thisOp.Text
		newOp.Embed = thisOp.Embed
		newOp.N = thisOp.N
	case thisOp.Embed != nil:
		newOp.Embed = composeEmbeds(thisOp.Embed, otherOp.Embed, keepNull)
	default:
		// an embed update can only land on an embed; against text it has
		// nothing to update
		newOp.Text = thisOp.Text
	}
	return newOp
}

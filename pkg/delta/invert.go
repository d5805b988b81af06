package delta

// Invert returns the change that undoes d, given the document base that d
// was applied to.
//
//	base.Compose(d).Compose(d.Invert(base)) == base
func (d *Delta) Invert(base *Delta) *Delta {
	out := &Delta{Ops: make([]Op, 0, len(d.Ops))}
	baseIter := NewIterator(base.Ops)
	for _, op := range d.Ops {
		switch {
		case op.Kind == KindInsert:
			out.push(DeleteOp(op.Len()))
		case op.Kind == KindRetain && op.Embed == nil && op.Attributes == nil:
			out.push(op)
			skip(baseIter, op.N)
		case op.Kind == KindDelete:
			for length := op.N; length > 0; {
				baseOp := baseIter.Next(length)
				if baseOp.Kind != KindInsert {
					// past the end of base
					break
				}
				out.push(baseOp)
				length -= baseOp.Len()
			}
		case op.Embed != nil:
			baseOp := baseIter.Next(1)
			inverted := Op{Kind: KindRetain, N: 1, Attributes: InvertAttributes(op.Attributes, baseOp.Attributes)}
			if baseOp.Embed != nil {
				inverted.N = 0
				inverted.Embed = invertEmbeds(op.Embed, baseOp.Embed)
			}
			out.push(inverted)
		default:
			for length := op.N; length > 0; {
				baseOp := baseIter.Next(length)
				if baseOp.Kind != KindInsert {
					out.push(RetainOp(length, InvertAttributes(op.Attributes, nil)))
					break
				}
				out.push(RetainOp(baseOp.Len(), InvertAttributes(op.Attributes, baseOp.Attributes)))
				length -= baseOp.Len()
			}
		}
	}
	return out.Chop()
}

func skip(iter *Iterator, length int) {
	for length > 0 && iter.HasNext() {
		length -= iter.Next(length).Len()
	}
}

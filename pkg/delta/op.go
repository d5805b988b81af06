package delta

import (
	"fmt"
	"math"
	"reflect"
	"unicode/utf8"

	"github.com/mitchellh/copystructure"
)

// Kind tags an Op as an insert, retain or delete.
type Kind uint8

const (
	KindInsert Kind = iota + 1
	KindRetain
	KindDelete
	// KindEnd is only ever reported by an exhausted Iterator.
	KindEnd
)

// Unbounded is the length of an exhausted iterator and the "no limit" value
// accepted by Iterator.Next.
const Unbounded = math.MaxInt

func (k Kind) String() string {
	switch k {
	case KindInsert:
		return "insert"
	case KindRetain:
		return "retain"
	case KindDelete:
		return "delete"
	case KindEnd:
		return "end"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Embed is a non-text unit of content, such as {"image": "cat.png"}. It
// occupies a single position in the document. On a retain it describes an
// update to the embed already at that position.
type Embed map[string]any

// Type returns the single key of the embed and its data. ok is false when the
// embed does not have exactly one key.
func (e Embed) Type() (embedType string, data any, ok bool) {
	if len(e) != 1 {
		return "", nil, false
	}
	for k, v := range e {
		return k, v, true
	}
	return "", nil, false
}

// Clone returns a deep copy of e.
func (e Embed) Clone() Embed {
	if e == nil {
		return nil
	}
	return copystructure.Must(copystructure.Copy(e)).(Embed)
}

// Op is a single insert, retain or delete.
//
// An insert carries either Text or Embed. A retain carries either a count N
// or an Embed describing an update to the embed it retains. A delete carries
// only N.
type Op struct {
	Kind       Kind
	Text       string
	Embed      Embed
	N          int
	Attributes AttributeMap
}

// InsertOp returns an insert of text.
func InsertOp(text string, attrs AttributeMap) Op {
	return Op{Kind: KindInsert, Text: text, Attributes: normalize(attrs)}
}

// InsertEmbedOp returns an insert of a single embed.
func InsertEmbedOp(embed Embed, attrs AttributeMap) Op {
	return Op{Kind: KindInsert, Embed: embed, Attributes: normalize(attrs)}
}

// RetainOp returns a retain of n positions.
func RetainOp(n int, attrs AttributeMap) Op {
	return Op{Kind: KindRetain, N: n, Attributes: normalize(attrs)}
}

// RetainEmbedOp returns a retain of one embed carrying an update to it.
func RetainEmbedOp(embed Embed, attrs AttributeMap) Op {
	return Op{Kind: KindRetain, Embed: embed, Attributes: normalize(attrs)}
}

// DeleteOp returns a delete of n positions.
func DeleteOp(n int) Op {
	return Op{Kind: KindDelete, N: n}
}

// Len returns the number of document positions op covers.
func (op Op) Len() int {
	switch op.Kind {
	case KindInsert:
		if op.Embed != nil {
			return 1
		}
		return utf8.RuneCountInString(op.Text)
	case KindRetain:
		if op.Embed != nil {
			return 1
		}
		return op.N
	case KindDelete:
		return op.N
	}
	return 0
}

// IsTextInsert reports whether op inserts text.
func (op Op) IsTextInsert() bool {
	return op.Kind == KindInsert && op.Embed == nil
}

// IsEmbedRetain reports whether op is a retain carrying an embed update.
func (op Op) IsEmbedRetain() bool {
	return op.Kind == KindRetain && op.Embed != nil
}

// Validate checks that op is well formed.
func (op Op) Validate() error {
	switch op.Kind {
	case KindInsert:
		if op.Embed == nil && op.Text == "" {
			return fmt.Errorf("%w: empty insert", ErrMalformedOp)
		}
		if op.Embed != nil && op.Text != "" {
			return fmt.Errorf("%w: insert has both text and embed", ErrMalformedOp)
		}
		if op.N != 0 {
			return fmt.Errorf("%w: insert has a count", ErrMalformedOp)
		}
	case KindRetain:
		if op.Text != "" {
			return fmt.Errorf("%w: retain has text", ErrMalformedOp)
		}
		if op.Embed == nil && op.N <= 0 {
			return fmt.Errorf("%w: retain of %d", ErrMalformedOp, op.N)
		}
		if op.Embed != nil && op.N != 0 {
			return fmt.Errorf("%w: retain has both embed and count", ErrMalformedOp)
		}
	case KindDelete:
		if op.N <= 0 {
			return fmt.Errorf("%w: delete of %d", ErrMalformedOp, op.N)
		}
		if op.Text != "" || op.Embed != nil || len(op.Attributes) > 0 {
			return fmt.Errorf("%w: delete carries content or attributes", ErrMalformedOp)
		}
	default:
		return fmt.Errorf("%w: unknown kind %v", ErrMalformedOp, op.Kind)
	}
	return nil
}

// Equal reports whether op and other are the same op.
func (op Op) Equal(other Op) bool {
	return op.Kind == other.Kind &&
		op.Text == other.Text &&
		op.N == other.N &&
		reflect.DeepEqual(op.Embed, other.Embed) &&
		op.Attributes.Equal(other.Attributes)
}

// clone deep copies the caller-owned maps of op.
func (op Op) clone() Op {
	op.Embed = op.Embed.Clone()
	op.Attributes = op.Attributes.Clone()
	return op
}

func (op Op) String() string {
	var body string
	switch {
	case op.Kind == KindInsert && op.Embed == nil:
		body = fmt.Sprintf("%q", op.Text)
	case op.Embed != nil:
		body = fmt.Sprintf("%v", map[string]any(op.Embed))
	default:
		body = fmt.Sprintf("%d", op.N)
	}
	if len(op.Attributes) > 0 {
		return fmt.Sprintf("%v(%s, %v)", op.Kind, body, map[string]any(op.Attributes))
	}
	return fmt.Sprintf("%v(%s)", op.Kind, body)
}

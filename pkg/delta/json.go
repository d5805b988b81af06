package delta

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// opRecord is the wire form of an Op: exactly one of insert, retain or delete.
type opRecord struct {
	Insert     json.RawMessage `json:"insert,omitempty"`
	Retain     json.RawMessage `json:"retain,omitempty"`
	Delete     json.RawMessage `json:"delete,omitempty"`
	Attributes AttributeMap    `json:"attributes,omitempty"`
}

// MarshalJSON encodes op as {"insert": ...}, {"retain": ...} or {"delete": n}
// with optional attributes. Removal markers encode as null.
func (op Op) MarshalJSON() ([]byte, error) {
	if err := op.Validate(); err != nil {
		return nil, err
	}
	var (
		rec opRecord
		err error
	)
	switch op.Kind {
	case KindInsert:
		if op.Embed != nil {
			rec.Insert, err = json.Marshal(map[string]any(op.Embed))
		} else {
			rec.Insert, err = json.Marshal(op.Text)
		}
	case KindRetain:
		if op.Embed != nil {
			rec.Retain, err = json.Marshal(map[string]any(op.Embed))
		} else {
			rec.Retain, err = json.Marshal(op.N)
		}
	case KindDelete:
		rec.Delete, err = json.Marshal(op.N)
	}
	if err != nil {
		return nil, err
	}
	rec.Attributes = op.Attributes
	return json.Marshal(rec)
}

// UnmarshalJSON decodes the wire form of an op.
func (op *Op) UnmarshalJSON(data []byte) error {
	var rec opRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	present := 0
	for _, raw := range []json.RawMessage{rec.Insert, rec.Retain, rec.Delete} {
		if len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
			present++
		}
	}
	if present != 1 {
		return fmt.Errorf("%w: want exactly one of insert, retain, delete in %s", ErrMalformedOp, data)
	}

	var out Op
	switch {
	case len(rec.Insert) > 0 && !isNull(rec.Insert):
		out.Kind = KindInsert
		if err := decodeContent(rec.Insert, &out.Text, &out.Embed); err != nil {
			return err
		}
	case len(rec.Retain) > 0 && !isNull(rec.Retain):
		out.Kind = KindRetain
		if err := decodeCount(rec.Retain, &out.N, &out.Embed); err != nil {
			return err
		}
	default:
		out.Kind = KindDelete
		if err := json.Unmarshal(rec.Delete, &out.N); err != nil {
			return fmt.Errorf("%w: delete: %v", ErrMalformedOp, err)
		}
	}
	out.Attributes = normalize(rec.Attributes)
	if err := out.Validate(); err != nil {
		return err
	}
	*op = out
	return nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(raw, []byte("null"))
}

func decodeContent(raw json.RawMessage, text *string, embed *Embed) error {
	if raw[0] == '"' {
		return json.Unmarshal(raw, text)
	}
	if raw[0] == '{' {
		return json.Unmarshal(raw, embed)
	}
	return fmt.Errorf("%w: insert must be a string or an object, got %s", ErrMalformedOp, raw)
}

func decodeCount(raw json.RawMessage, n *int, embed *Embed) error {
	if raw[0] == '{' {
		return json.Unmarshal(raw, embed)
	}
	if err := json.Unmarshal(raw, n); err != nil {
		return fmt.Errorf("%w: retain: %v", ErrMalformedOp, err)
	}
	return nil
}

type deltaRecord struct {
	Ops []Op `json:"ops"`
}

// MarshalJSON encodes d as {"ops": [...]}.
func (d *Delta) MarshalJSON() ([]byte, error) {
	ops := d.Ops
	if ops == nil {
		ops = []Op{}
	}
	return json.Marshal(deltaRecord{Ops: ops})
}

// UnmarshalJSON decodes {"ops": [...]} or a bare op array, normalizing the
// ops as they are appended.
func (d *Delta) UnmarshalJSON(data []byte) error {
	var ops []Op
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &ops); err != nil {
			return err
		}
	} else {
		var rec deltaRecord
		if err := json.Unmarshal(trimmed, &rec); err != nil {
			return err
		}
		ops = rec.Ops
	}
	out := &Delta{Ops: make([]Op, 0, len(ops))}
	for _, op := range ops {
		out.push(op)
	}
	*d = *out
	return nil
}

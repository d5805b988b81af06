package delta

import (
	"reflect"

	"github.com/mitchellh/copystructure"
)

// AttributeMap holds the formatting of a run of content or of an op.
//
// A key mapped to nil is the removal marker: composing it onto another map
// deletes that key. A key that is not in the map at all is simply untouched.
// JSON null decodes to a present nil value, so the two cases survive the wire.
type AttributeMap map[string]any

// Clone returns a deep copy of m, or nil when m is empty.
func (m AttributeMap) Clone() AttributeMap {
	if len(m) == 0 {
		return nil
	}
	return copystructure.Must(copystructure.Copy(m)).(AttributeMap)
}

// Equal reports whether m and other hold the same keys and values. A nil map
// equals an empty one.
func (m AttributeMap) Equal(other AttributeMap) bool {
	if len(m) != len(other) {
		return false
	}
	for k, v := range m {
		ov, ok := other[k]
		if !ok || !reflect.DeepEqual(v, ov) {
			return false
		}
	}
	return true
}

// ComposeAttributes returns the attributes resulting from applying b after a.
// Removal markers in b are dropped from the result unless keepNull is set.
func ComposeAttributes(a, b AttributeMap, keepNull bool) AttributeMap {
	out := make(AttributeMap, len(a)+len(b))
	for k, v := range b {
		if v == nil && !keepNull {
			continue
		}
		out[k] = v
	}
	for k, v := range a {
		if _, ok := b[k]; !ok {
			out[k] = v
		}
	}
	return normalize(out)
}

// DiffAttributes returns the attributes that turn a into b when composed onto a.
func DiffAttributes(a, b AttributeMap) AttributeMap {
	out := make(AttributeMap)
	for k, av := range a {
		bv, ok := b[k]
		if !ok {
			out[k] = nil
		} else if !reflect.DeepEqual(av, bv) {
			out[k] = bv
		}
	}
	for k, bv := range b {
		if _, ok := a[k]; !ok {
			out[k] = bv
		}
	}
	return normalize(out)
}

// InvertAttributes returns the attributes that undo attr given the base
// attributes it was applied to.
func InvertAttributes(attr, base AttributeMap) AttributeMap {
	out := make(AttributeMap)
	for k, av := range attr {
		bv, ok := base[k]
		switch {
		case !ok:
			out[k] = nil
		case !reflect.DeepEqual(av, bv):
			out[k] = bv
		}
	}
	return normalize(out)
}

// TransformAttributes rebases b against a concurrent a. With priority, a was
// applied first and wins every key it touched.
func TransformAttributes(a, b AttributeMap, priority bool) AttributeMap {
	if len(a) == 0 {
		return normalize(b)
	}
	if len(b) == 0 {
		return nil
	}
	if !priority {
		return normalize(b)
	}
	out := make(AttributeMap)
	for k, v := range b {
		if _, ok := a[k]; !ok {
			out[k] = v
		}
	}
	return normalize(out)
}

func normalize(m AttributeMap) AttributeMap {
	if len(m) == 0 {
		return nil
	}
	return m
}

package delta

import (
	"strings"
	"unicode/utf8"
)

// LineFunc receives one line of a document, the attributes of the newline
// that ends it and the line's index. Returning false stops the iteration.
type LineFunc func(line *Delta, attrs AttributeMap, index int) bool

// EachLine calls fn for every "\n"-terminated line of document d, and for the
// trailing unterminated line if it is not empty.
func (d *Delta) EachLine(fn LineFunc) error {
	return d.EachLineSep("\n", fn)
}

// EachLineSep is EachLine with a custom line separator.
func (d *Delta) EachLineSep(newline string, fn LineFunc) error {
	if newline == "" {
		return ErrEmptySeparator
	}
	if !d.IsDocument() {
		return ErrNotDocument
	}
	iter := NewIterator(d.Ops)
	line := &Delta{}
	i := 0
	for iter.HasNext() {
		index := -1
		if text, ok := iter.remainingText(); ok {
			if at := strings.Index(text, newline); at >= 0 {
				index = utf8.RuneCountInString(text[:at])
			}
		}
		switch {
		case index < 0:
			line.push(iter.Next(0))
		case index > 0:
			line.push(iter.Next(index))
		default:
			nl := iter.Next(utf8.RuneCountInString(newline))
			attrs := nl.Attributes
			if attrs == nil {
				attrs = AttributeMap{}
			}
			if !fn(line, attrs, i) {
				return nil
			}
			i++
			line = &Delta{}
		}
	}
	if line.Length() > 0 {
		fn(line, AttributeMap{}, i)
	}
	return nil
}

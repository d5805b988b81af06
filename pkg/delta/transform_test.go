package delta

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestTransform(t *testing.T) {
	tests := []struct {
		name     string
		a, b     *Delta
		priority bool
		want     *Delta
	}{
		{"insert + insert with priority", New().Insert("A", nil), New().Insert("B", nil), true, New().Retain(1, nil).Insert("B", nil)},
		{"insert + insert without priority", New().Insert("A", nil), New().Insert("B", nil), false, New().Insert("B", nil)},
		{
			"insert + retain",
			New().Insert("A", nil),
			New().Retain(1, AttributeMap{"bold": true, "color": "red"}),
			true,
			New().Retain(1, nil).Retain(1, AttributeMap{"bold": true, "color": "red"}),
		},
		{"insert + delete", New().Insert("A", nil), New().Delete(1), true, New().Retain(1, nil).Delete(1)},
		{"delete + insert", New().Delete(1), New().Insert("B", nil), true, New().Insert("B", nil)},
		{"delete + retain", New().Delete(1), New().Retain(1, AttributeMap{"bold": true, "color": "red"}), true, New()},
		{"delete + delete", New().Delete(1), New().Delete(1), true, New()},
		{"retain + insert", New().Retain(1, AttributeMap{"color": "blue"}), New().Insert("B", nil), true, New().Insert("B", nil)},
		{
			"retain + retain with priority",
			New().Retain(1, AttributeMap{"color": "blue"}),
			New().Retain(1, AttributeMap{"bold": true, "color": "red"}),
			true,
			New().Retain(1, AttributeMap{"bold": true}),
		},
		{
			"retain + retain reversed with priority",
			New().Retain(1, AttributeMap{"bold": true, "color": "red"}),
			New().Retain(1, AttributeMap{"color": "blue"}),
			true,
			New(),
		},
		{
			"retain + retain without priority",
			New().Retain(1, AttributeMap{"color": "blue"}),
			New().Retain(1, AttributeMap{"bold": true, "color": "red"}),
			false,
			New().Retain(1, AttributeMap{"bold": true, "color": "red"}),
		},
		{
			"retain + retain reversed without priority",
			New().Retain(1, AttributeMap{"bold": true, "color": "red"}),
			New().Retain(1, AttributeMap{"color": "blue"}),
			false,
			New().Retain(1, AttributeMap{"color": "blue"}),
		},
		{"retain + delete", New().Retain(1, AttributeMap{"color": "blue"}), New().Delete(1), true, New().Delete(1)},
		{
			"alternating edits",
			New().Retain(2, nil).Insert("si", nil).Delete(5),
			New().Retain(1, nil).Insert("e", nil).Delete(5).Insert("ow", nil),
			false,
			// "e" and "ow" merge into one insert ahead of the delete
			New().Retain(1, nil).Insert("eow", nil).Delete(1),
		},
		{
			"alternating edits reversed",
			New().Retain(1, nil).Insert("e", nil).Delete(5).Insert("ow", nil),
			New().Retain(2, nil).Insert("si", nil).Delete(5),
			false,
			New().Retain(4, nil).Insert("si", nil).Delete(1),
		},
		{"conflicting appends", New().Retain(3, nil).Insert("aa", nil), New().Retain(3, nil).Insert("bb", nil), true, New().Retain(5, nil).Insert("bb", nil)},
		{"conflicting appends reversed", New().Retain(3, nil).Insert("bb", nil), New().Retain(3, nil).Insert("aa", nil), false, New().Retain(3, nil).Insert("aa", nil)},
		{"prepend + append", New().Insert("aa", nil), New().Retain(3, nil).Insert("bb", nil), false, New().Retain(5, nil).Insert("bb", nil)},
		{"prepend + append reversed", New().Retain(3, nil).Insert("bb", nil), New().Insert("aa", nil), false, New().Insert("aa", nil)},
		{"trailing deletes with differing lengths", New().Retain(2, nil).Delete(1), New().Delete(3), false, New().Delete(2)},
		{"trailing deletes with differing lengths reversed", New().Delete(3), New().Retain(2, nil).Delete(1), false, New()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertDelta(t, tt.a.Transform(tt.b, tt.priority), tt.want)
		})
	}
}

func TestTransformDoesNotModifyInputs(t *testing.T) {
	a1 := New().Insert("A", nil)
	a2 := New().Insert("A", nil)
	b1 := New().Insert("B", nil)
	b2 := New().Insert("B", nil)
	want := New().Retain(1, nil).Insert("B", nil)
	assertDelta(t, a1.Transform(b1, true), want)
	assertDelta(t, a1, a2)
	assertDelta(t, b1, b2)
}

func TestTransformConvergence(t *testing.T) {
	doc := New().Insert("Hello World", AttributeMap{"font": "serif"}).Insert("\n", nil)
	pairs := []struct {
		name string
		a, b *Delta
	}{
		{"concurrent inserts", New().Retain(5, nil).Insert(",", nil), New().Retain(5, nil).Insert("!", nil)},
		{"insert inside delete", New().Retain(2, nil).Delete(6), New().Retain(4, nil).Insert("xyz", nil)},
		{"overlapping deletes", New().Retain(1, nil).Delete(5), New().Retain(3, nil).Delete(5)},
		{
			"conflicting formats",
			New().Retain(6, AttributeMap{"bold": true, "font": nil}),
			New().Retain(3, nil).Retain(6, AttributeMap{"bold": false, "italic": true}),
		},
		{"format deleted text", New().Delete(11), New().Retain(2, AttributeMap{"color": "red"}).Insert("Q", nil)},
	}
	for _, p := range pairs {
		t.Run(p.name, func(t *testing.T) {
			left := doc.Compose(p.a).Compose(p.a.Transform(p.b, true))
			right := doc.Compose(p.b).Compose(p.b.Transform(p.a, false))
			assertDelta(t, left, right)

			// the same property on the changes themselves
			assertDelta(t, p.a.Compose(p.a.Transform(p.b, true)), p.b.Compose(p.b.Transform(p.a, false)))
		})
	}
}

func TestTransformPosition(t *testing.T) {
	tests := []struct {
		name     string
		d        *Delta
		index    int
		priority bool
		want     int
	}{
		{"insert before position", New().Insert("A", nil), 2, false, 3},
		{"insert after position", New().Retain(2, nil).Insert("A", nil), 1, false, 1},
		{"insert at position", New().Retain(2, nil).Insert("A", nil), 2, false, 3},
		{"insert at position with priority", New().Retain(2, nil).Insert("A", nil), 2, true, 2},
		{"delete before position", New().Delete(2), 4, false, 2},
		{"delete after position", New().Retain(4, nil).Delete(2), 2, false, 2},
		{"delete across position", New().Retain(1, nil).Delete(4), 2, false, 1},
		{"insert and delete before position", New().Retain(2, nil).Insert("A", nil).Delete(2), 4, false, 3},
		{"insert before and delete across position", New().Retain(2, nil).Insert("ABC", nil).Delete(4), 4, false, 5},
		{"delete before and delete across position", New().Delete(1).Retain(1, nil).Delete(4), 4, false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.d.TransformPosition(tt.index, tt.priority), tt.want)
		})
	}
}

package delta

import "testing"

func TestInvert(t *testing.T) {
	base := New().Insert("123456", nil)

	tests := []struct {
		name   string
		change *Delta
		base   *Delta
		want   *Delta
	}{
		{"insert", New().Retain(2, nil).Insert("A", nil), base, New().Retain(2, nil).Delete(1)},
		{"delete", New().Retain(2, nil).Delete(3), base, New().Retain(2, nil).Insert("345", nil)},
		{"retain", New().Retain(2, nil).Retain(3, AttributeMap{"bold": true}), base, New().Retain(2, nil).Retain(3, AttributeMap{"bold": nil})},
		{
			"retain restores base attributes",
			New().Retain(3, AttributeMap{"color": "red", "bold": nil}),
			New().Insert("abc", AttributeMap{"color": "blue", "bold": true}),
			New().Retain(3, AttributeMap{"color": "blue", "bold": true}),
		},
		{
			"delete embed",
			New().Retain(1, nil).Delete(1),
			New().Insert("a", nil).InsertEmbed(Embed{"image": "a.png"}, AttributeMap{"alt": "A"}),
			New().Retain(1, nil).InsertEmbed(Embed{"image": "a.png"}, AttributeMap{"alt": "A"}),
		},
		{
			"combined",
			New().Retain(2, nil).
				Delete(2).
				Insert("AB", AttributeMap{"italic": true}).
				Retain(2, AttributeMap{"italic": true, "bold": true}).
				Retain(2, AttributeMap{"color": "red"}).
				Delete(1),
			New().Insert("123", AttributeMap{"bold": true}).
				Insert("456", AttributeMap{"italic": true}).
				Insert("789", AttributeMap{"color": "red", "bold": true}),
			New().Retain(2, nil).
				Insert("3", AttributeMap{"bold": true}).
				Insert("4", AttributeMap{"italic": true}).
				Delete(2).
				Retain(2, AttributeMap{"bold": nil}).
				Retain(2, nil).
				Insert("9", AttributeMap{"color": "red", "bold": true}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inverted := tt.change.Invert(tt.base)
			assertDelta(t, inverted, tt.want)
			assertDelta(t, tt.base.Compose(tt.change).Compose(inverted), tt.base)
		})
	}
}

func TestInvertRetainPastEnd(t *testing.T) {
	change := New().Retain(5, AttributeMap{"bold": true})
	assertDelta(t, change.Invert(New().Insert("123", nil)), New().Retain(5, AttributeMap{"bold": nil}))
}

func TestInvertDoesNotModifyInputs(t *testing.T) {
	base := New().Insert("Hello", AttributeMap{"bold": true}).Insert(" World", nil)
	baseCopy := base.Clone()
	change := New().Retain(3, AttributeMap{"bold": nil}).Delete(4).Insert("!", nil)
	changeCopy := change.Clone()

	change.Invert(base)
	assertDelta(t, base, baseCopy)
	assertDelta(t, change, changeCopy)
}

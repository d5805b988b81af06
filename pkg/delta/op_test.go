package delta

import (
	"errors"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestOpLen(t *testing.T) {
	tests := []struct {
		name string
		op   Op
		want int
	}{
		{"delete", DeleteOp(5), 5},
		{"retain", RetainOp(2, nil), 2},
		{"insert text", InsertOp("text", nil), 4},
		{"insert embed", InsertEmbedOp(Embed{"image": "octocat.png"}, nil), 1},
		{"retain embed", RetainEmbedOp(Embed{"image": "octocat.png"}, nil), 1},
		{"multibyte text", InsertOp("héllo 日本", nil), 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.op.Len(), tt.want)
		})
	}
}

func TestOpValidate(t *testing.T) {
	valid := []Op{
		InsertOp("a", AttributeMap{"bold": true}),
		InsertEmbedOp(Embed{"image": "a.png"}, nil),
		RetainOp(3, AttributeMap{"bold": nil}),
		RetainEmbedOp(Embed{"image": "b.png"}, nil),
		DeleteOp(1),
	}
	for _, op := range valid {
		assert.Equal(t, op.Validate(), nil)
	}

	invalid := []Op{
		{},
		{Kind: KindEnd, N: 1},
		InsertOp("", nil),
		{Kind: KindInsert, Text: "a", Embed: Embed{"image": "a.png"}},
		RetainOp(0, nil),
		RetainOp(-2, nil),
		DeleteOp(0),
		{Kind: KindDelete, N: 1, Attributes: AttributeMap{"bold": true}},
	}
	for _, op := range invalid {
		err := op.Validate()
		assert.Equal(t, errors.Is(err, ErrMalformedOp), true)
	}
}

func TestEmbedType(t *testing.T) {
	embedType, data, ok := Embed{"image": "a.png"}.Type()
	assert.Equal(t, ok, true)
	assert.Equal(t, embedType, "image")
	assert.Equal(t, data, "a.png")

	_, _, ok = Embed{"image": "a.png", "video": "b.mp4"}.Type()
	assert.Equal(t, ok, false)
}

func TestOpEqual(t *testing.T) {
	assert.Equal(t, InsertOp("a", nil).Equal(InsertOp("a", AttributeMap{})), true)
	assert.Equal(t, InsertOp("a", nil).Equal(InsertOp("a", AttributeMap{"bold": true})), false)
	assert.Equal(t, RetainOp(1, AttributeMap{"bold": nil}).Equal(RetainOp(1, nil)), false)
	assert.Equal(t, InsertEmbedOp(Embed{"image": "a"}, nil).Equal(InsertEmbedOp(Embed{"image": "a"}, nil)), true)
	assert.Equal(t, InsertEmbedOp(Embed{"image": "a"}, nil).Equal(RetainEmbedOp(Embed{"image": "a"}, nil)), false)
}

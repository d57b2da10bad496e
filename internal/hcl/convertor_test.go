package hcl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

type imageOptions struct {
	JPEGQuality int      `option:"jpeg_quality"`
	Optimize    bool     `option:"optimize"`
	Skip        []string `option:"skip"`
	Untagged    string
}

func TestConverter_DecodeOptions(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	opts := imageOptions{JPEGQuality: 75, Optimize: true, Untagged: "keep"}
	val := cty.ObjectVal(map[string]cty.Value{
		"jpeg_quality": cty.StringVal("60"),
		"skip":         cty.TupleVal([]cty.Value{cty.StringVal("*.gif")}),
		"optimize":     cty.NullVal(cty.Bool),
	})

	// --- Act ---
	err := NewConverter().DecodeOptions(context.Background(), val, &opts)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, imageOptions{JPEGQuality: 60, Optimize: true, Skip: []string{"*.gif"}, Untagged: "keep"}, opts)
}

func TestConverter_DecodeOptionsErrors(t *testing.T) {
	t.Parallel()

	c := NewConverter()
	var opts imageOptions

	err := c.DecodeOptions(context.Background(), cty.ObjectVal(map[string]cty.Value{"level": cty.NumberIntVal(3)}), &opts)
	assert.ErrorContains(t, err, "unknown options: level")

	err = c.DecodeOptions(context.Background(), cty.ObjectVal(map[string]cty.Value{"jpeg_quality": cty.True}), &opts)
	assert.ErrorContains(t, err, "failed to decode option 'jpeg_quality'")

	err = c.DecodeOptions(context.Background(), cty.EmptyObjectVal, opts)
	assert.ErrorContains(t, err, "non-nil pointer to a struct")

	require.NoError(t, c.DecodeOptions(context.Background(), cty.NullVal(cty.DynamicPseudoType), &opts))
}

func TestConverter_ToCtyValue(t *testing.T) {
	t.Parallel()

	v, err := NewConverter().ToCtyValue([]string{"a"})
	require.NoError(t, err)
	assert.True(t, v.Equals(cty.ListVal([]cty.Value{cty.StringVal("a")})).True())

	v, err = NewConverter().ToCtyValue(nil)
	require.NoError(t, err)
	assert.Equal(t, cty.NilVal, v)
}

package colorsync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onkernel/pagebridge/lib/logger"
)

type fakeStyler struct {
	colors []string
	err    error
}

func (f *fakeStyler) SetBackgroundColor(_ context.Context, color string) error {
	if f.err != nil {
		return f.err
	}
	f.colors = append(f.colors, color)
	return nil
}

func TestApplySetsExactValue(t *testing.T) {
	s := &fakeStyler{}
	b := NewBridge(s, logger.Discard())

	require.NoError(t, b.Apply(context.Background(), "#112233"))
	assert.Equal(t, []string{"#112233"}, s.colors)

	last, ok := b.Last()
	require.True(t, ok)
	assert.Equal(t, "#112233", last)
}

func TestApplyPassesUnvalidatedValues(t *testing.T) {
	s := &fakeStyler{}
	b := NewBridge(s, logger.Discard())

	for _, c := range []string{"", "not-a-color", "rgb(1,2,3)", "rebeccapurple", "#zzz"} {
		require.NoError(t, b.Apply(context.Background(), c))
	}
	assert.Equal(t, []string{"", "not-a-color", "rgb(1,2,3)", "rebeccapurple", "#zzz"}, s.colors)
}

func TestApplyHostFailure(t *testing.T) {
	s := &fakeStyler{err: errors.New("detached")}
	b := NewBridge(s, logger.Discard())

	err := b.Apply(context.Background(), "red")
	require.Error(t, err)
	assert.ErrorIs(t, err, s.err)

	_, ok := b.Last()
	assert.False(t, ok)
}

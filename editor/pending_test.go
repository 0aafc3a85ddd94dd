package editor

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
)

func TestPendingEditsDrain(t *testing.T) {
	p := NewPendingEdits()
	a := NewFeature(orb.Point{0, 0})
	b := NewFeature(orb.Point{1, 1})

	assert.True(t, p.Record(a))
	assert.False(t, p.Record(a))
	assert.True(t, p.Record(b))
	assert.Equal(t, 2, p.Len())

	assert.Equal(t, []*Feature{a, b}, p.Drain())
	assert.Empty(t, p.Drain())

	// drain 之后的记录属于新批次
	assert.True(t, p.Record(a))
	assert.Equal(t, []*Feature{a}, p.Drain())
}

func TestPendingEditsIdentityNotValue(t *testing.T) {
	p := NewPendingEdits()
	p.Record(NewFeature(orb.Point{0, 0}))
	p.Record(NewFeature(orb.Point{0, 0}))
	assert.Equal(t, 2, p.Len())

	p.Reset()
	assert.Equal(t, 0, p.Len())
}

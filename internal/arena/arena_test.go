package arena_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jopamo/hxm/internal/arena"
)

func TestTickResetReusesCapacity(t *testing.T) {
	a := arena.NewTick(16)
	b1 := a.Bytes(8)
	assert.Len(t, b1, 8)
	a.Reset()
	b2 := a.Bytes(8)
	assert.Len(t, b2, 8)
	assert.Same(t, &b1[0], &b2[0], "reset must reuse the same backing buffer")
}

func TestStringUpdateIfChangedReusesIdenticalValue(t *testing.T) {
	var s arena.String

	v1, changed := s.UpdateIfChanged(0, "firefox")
	assert.True(t, changed)
	assert.Equal(t, "firefox", v1)

	v2, changed := s.UpdateIfChanged(0, "firefox")
	assert.False(t, changed, "identical value must not be reported as a change")
	assert.Equal(t, v1, v2)

	v3, changed := s.UpdateIfChanged(0, "chrome")
	assert.True(t, changed)
	assert.Equal(t, "chrome", v3)
}

func TestStringSlotsAreIndependent(t *testing.T) {
	var s arena.String
	s.UpdateIfChanged(0, "Instance")
	s.UpdateIfChanged(1, "Class")
	assert.Equal(t, "Instance", s.Get(0))
	assert.Equal(t, "Class", s.Get(1))
}

package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jopamo/hxm/internal/config"
)

func TestDefaultMatchesDocumentedValues(t *testing.T) {
	c := config.Default()
	assert.EqualValues(t, 50, c.MinWidth)
	assert.EqualValues(t, 20, c.MinHeight)
	assert.EqualValues(t, 800, c.DefaultWidth)
	assert.EqualValues(t, 600, c.DefaultHeight)
	assert.Equal(t, 256, c.MaxEventsPerTick)
	assert.Equal(t, 32, c.CookieDrainBudget)
}

// S6/property 6: tiny-geometry rescue.
func TestRescueGeometry(t *testing.T) {
	c := config.Default()

	tests := []struct {
		name       string
		w, h       uint16
		wantW, wantH uint16
	}{
		{"both tiny", 10, 10, 800, 600},
		{"width tiny only", 10, 100, 800, 600},
		{"height tiny only", 200, 5, 800, 600},
		{"already sane", 640, 480, 640, 480},
		{"exactly at floor", 50, 20, 50, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := c.RescueGeometry(tt.w, tt.h)
			assert.Equal(t, tt.wantW, w)
			assert.Equal(t, tt.wantH, h)
		})
	}
}

func TestLoadWithoutPathReturnsDefaults(t *testing.T) {
	c, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.Default(), c)
}

package ticker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckSpeed(t *testing.T) {
	tests := []struct {
		speed     int
		confirmed bool
		want      int
		wantErr   bool
	}{
		{0, false, DefaultSpeed, false},
		{5, false, 5, false},
		{30, false, 30, false},
		{3, false, 0, true},
		{3, true, 5, false},
		{31, true, 30, false},
		{-10, true, 5, false},
	}
	for _, tt := range tests {
		got, err := checkSpeed(tt.speed, tt.confirmed)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrSpeedOutOfRange, "speed %d", tt.speed)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "speed %d", tt.speed)
	}
}

func TestCompose(t *testing.T) {
	d := Compose([]Item{
		{Text: "tiga", Active: true, Priority: 3, Speed: 25},
		{Text: "mati", Active: false, Priority: 0},
		{Text: "satu", Active: true, Priority: 1, Speed: 8, Animation: AnimationFadeIn},
		{Text: "dua", Active: true, Priority: 2},
	})
	assert.Equal(t, "satu   •   dua   •   tiga", d.Text)
	assert.Equal(t, 8, d.Speed)
	assert.Equal(t, AnimationFadeIn, d.Animation)
	assert.Len(t, d.Items, 3)

	empty := Compose(nil)
	assert.Empty(t, empty.Text)
	assert.Equal(t, DefaultSpeed, empty.Speed)
}

package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatches(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		a, b      Box
		tolerance float64
		want      bool
	}{
		{
			name:      "identical boxes",
			a:         Box{10, 20, 30, 40},
			b:         Box{10, 20, 30, 40},
			tolerance: MatchEpsilon,
			want:      true,
		},
		{
			name:      "all deltas just inside",
			a:         Box{10, 20, 30, 40},
			b:         Box{11.9, 21.9, 31.9, 41.9},
			tolerance: MatchEpsilon,
			want:      true,
		},
		{
			name:      "delta exactly at tolerance fails",
			a:         Box{10, 20, 30, 40},
			b:         Box{12, 20, 30, 40},
			tolerance: MatchEpsilon,
			want:      false,
		},
		{
			name:      "one coordinate far outside",
			a:         Box{10, 20, 30, 40},
			b:         Box{10, 20, 30, 50},
			tolerance: MatchEpsilon,
			want:      false,
		},
		{
			name:      "denormalized input is normalized first",
			a:         Box{30, 40, 10, 20},
			b:         Box{10, 20, 30, 40},
			tolerance: MatchEpsilon,
			want:      true,
		},
		{
			name:      "dedupe epsilon is tighter",
			a:         Box{10, 20, 30, 40},
			b:         Box{11, 20, 30, 40},
			tolerance: DedupeEpsilon,
			want:      false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Matches(tt.a, tt.b, tt.tolerance))
		})
	}
}

func TestMoveThreshold(t *testing.T) {
	t.Parallel()

	// Small box hits the floor.
	assert.InDelta(t, 10.0, MoveThreshold(Box{0, 0, 2, 2}), 1e-9)

	// Large box scales with perimeter: 1.5 * (100 + 50).
	assert.InDelta(t, 225.0, MoveThreshold(Box{0, 0, 100, 50}), 1e-9)
}

func TestMoved(t *testing.T) {
	t.Parallel()

	original := Box{0, 0, 100, 50} // threshold 225

	tests := []struct {
		name    string
		current Box
		want    bool
	}{
		{
			name:    "unchanged",
			current: Box{0, 0, 100, 50},
			want:    false,
		},
		{
			name:    "nudge below threshold",
			current: Box{50, 0, 150, 50}, // L1 = 100
			want:    false,
		},
		{
			name:    "at threshold is not moved",
			current: Box{0, 0, 100, 275}, // L1 = 225
			want:    false,
		},
		{
			name:    "beyond threshold",
			current: Box{200, 0, 300, 80}, // L1 = 430
			want:    true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Moved(tt.current, original))
		})
	}

	t.Run("small box uses the floor", func(t *testing.T) {
		t.Parallel()
		small := Box{0, 0, 2, 2}
		assert.False(t, Moved(Box{2, 2, 4, 4}, small)) // L1 = 8
		assert.True(t, Moved(Box{4, 4, 8, 8}, small))  // L1 = 20
	})
}

func TestClosestMatch(t *testing.T) {
	t.Parallel()

	candidates := []Box{
		{0, 0, 10, 10},
		{1, 1, 11, 11},
		{100, 100, 110, 110},
	}

	t.Run("nearest wins", func(t *testing.T) {
		t.Parallel()
		got := ClosestMatch(Box{0.9, 0.9, 10.9, 10.9}, candidates, MatchEpsilon)
		assert.Equal(t, 1, got)
	})

	t.Run("no candidate within tolerance", func(t *testing.T) {
		t.Parallel()
		got := ClosestMatch(Box{50, 50, 60, 60}, candidates, MatchEpsilon)
		assert.Equal(t, -1, got)
	})

	t.Run("tie resolves to earliest", func(t *testing.T) {
		t.Parallel()
		tied := []Box{{0, 0, 10, 10}, {0, 0, 10, 10}}
		assert.Equal(t, 0, ClosestMatch(Box{0, 0, 10, 10}, tied, MatchEpsilon))
	})

	t.Run("empty candidates", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, -1, ClosestMatch(Box{0, 0, 10, 10}, nil, MatchEpsilon))
	})
}

package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBoxNormalized(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   Box
		want Box
	}{
		{
			name: "already normalized",
			in:   Box{10, 20, 30, 40},
			want: Box{10, 20, 30, 40},
		},
		{
			name: "x swapped",
			in:   Box{30, 20, 10, 40},
			want: Box{10, 20, 30, 40},
		},
		{
			name: "y swapped",
			in:   Box{10, 40, 30, 20},
			want: Box{10, 20, 30, 40},
		},
		{
			name: "both swapped",
			in:   Box{30, 40, 10, 20},
			want: Box{10, 20, 30, 40},
		},
		{
			name: "degenerate zero width kept as-is",
			in:   Box{10, 20, 10, 40},
			want: Box{10, 20, 10, 40},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.in.Normalized())
		})
	}
}

func TestBoxDimensions(t *testing.T) {
	t.Parallel()

	b := Box{10, 20, 40, 80}
	assert.InDelta(t, 30.0, b.Width(), 1e-9)
	assert.InDelta(t, 60.0, b.Height(), 1e-9)
	assert.InDelta(t, 1800.0, b.Area(), 1e-9)

	// Dimensions are computed on the normalized box.
	swapped := Box{40, 80, 10, 20}
	assert.InDelta(t, 30.0, swapped.Width(), 1e-9)
	assert.InDelta(t, 60.0, swapped.Height(), 1e-9)
}

func TestBoxIsNormalized(t *testing.T) {
	t.Parallel()

	assert.True(t, Box{1, 2, 3, 4}.IsNormalized())
	assert.False(t, Box{3, 2, 1, 4}.IsNormalized())
	assert.False(t, Box{1, 2, 1, 4}.IsNormalized())
}

func TestL1Distance(t *testing.T) {
	t.Parallel()

	a := Box{0, 0, 10, 10}
	b := Box{1, 2, 13, 14}
	assert.InDelta(t, 10.0, L1Distance(a, b), 1e-9)
	assert.InDelta(t, 10.0, L1Distance(b, a), 1e-9)
	assert.Zero(t, L1Distance(a, a))
}

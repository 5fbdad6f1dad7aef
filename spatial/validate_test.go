package spatial

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var plan100 = Dimensions{Width: 100, Height: 100, Scale: 1, Unit: UnitMetric}

func hasMessage(msgs []string, substr string) bool {
	for _, m := range msgs {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

func TestValidateSpaceCoordinatesClosedSquare(t *testing.T) {
	res, err := ValidateSpaceCoordinates(square(0, 0, 10), plan100, false)
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	assert.Empty(t, res.Errors)
	assert.Empty(t, res.Warnings)
}

func TestValidateSpaceCoordinatesTwoPoints(t *testing.T) {
	res, err := ValidateSpaceCoordinates([]Coordinate{Pt(0, 0), Pt(10, 10)}, plan100, false)
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	require.NotEmpty(t, res.Errors)
	assert.Contains(t, res.Errors[0], "at least 3 points")
}

func TestValidateSpaceCoordinatesFailures(t *testing.T) {
	tests := []struct {
		name   string
		coords []Coordinate
		want   string
	}{
		{
			name:   "point out of bounds",
			coords: []Coordinate{Pt(0, 0), Pt(150, 0), Pt(150, 10), Pt(0, 10), Pt(0, 0)},
			want:   "coordinate 1 (150.00, 0.00) is outside",
		},
		{
			name:   "negative coordinate",
			coords: []Coordinate{Pt(-1, 0), Pt(10, 0), Pt(10, 10), Pt(-1, 0)},
			want:   "coordinate 0",
		},
		{
			name:   "not closed",
			coords: []Coordinate{Pt(0, 0), Pt(10, 0), Pt(10, 10), Pt(0, 10)},
			want:   "not closed",
		},
		{
			name:   "bowtie",
			coords: []Coordinate{Pt(0, 0), Pt(10, 10), Pt(10, 0), Pt(0, 10), Pt(0, 0)},
			want:   "self-intersects",
		},
		{
			name:   "collinear",
			coords: []Coordinate{Pt(0, 0), Pt(5, 0), Pt(10, 0), Pt(0, 0)},
			want:   "encloses no area",
		},
		{
			name:   "degenerate",
			coords: []Coordinate{Pt(1, 1), Pt(1, 1), Pt(1, 1), Pt(1, 1)},
			want:   "degenerate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ValidateSpaceCoordinates(tt.coords, plan100, false)
			require.NoError(t, err)
			assert.False(t, res.IsValid)
			assert.True(t, hasMessage(res.Errors, tt.want), "errors %v should mention %q", res.Errors, tt.want)
		})
	}
}

func TestValidateSpaceCoordinatesReportsEveryOutOfBoundsPoint(t *testing.T) {
	coords := []Coordinate{Pt(0, 0), Pt(120, 0), Pt(120, 130), Pt(0, 10), Pt(0, 0)}
	res, err := ValidateSpaceCoordinates(coords, plan100, false)
	require.NoError(t, err)
	assert.True(t, hasMessage(res.Errors, "coordinate 1 "))
	assert.True(t, hasMessage(res.Errors, "coordinate 2 "))
	assert.False(t, hasMessage(res.Errors, "coordinate 3 "))
}

func TestValidateSpaceCoordinatesClosureEpsilon(t *testing.T) {
	coords := square(0, 0, 10)
	coords[len(coords)-1] = Pt(0.00005, 0)
	res, err := ValidateSpaceCoordinates(coords, plan100, false)
	require.NoError(t, err)
	assert.True(t, res.IsValid, "errors: %v", res.Errors)

	coords[len(coords)-1] = Pt(0.001, 0)
	res, err = ValidateSpaceCoordinates(coords, plan100, false)
	require.NoError(t, err)
	assert.True(t, hasMessage(res.Errors, "not closed"))
}

func TestValidateSpaceCoordinatesDuplicateVertexWarning(t *testing.T) {
	coords := []Coordinate{Pt(0, 0), Pt(10, 0), Pt(10, 0), Pt(10, 10), Pt(0, 10), Pt(0, 0)}
	res, err := ValidateSpaceCoordinates(coords, plan100, false)
	require.NoError(t, err)
	assert.True(t, res.IsValid, "errors: %v", res.Errors)
	assert.True(t, hasMessage(res.Warnings, "duplicate"))
}

func TestValidateSpaceCoordinates3D(t *testing.T) {
	t.Run("too few points", func(t *testing.T) {
		res, err := ValidateSpaceCoordinates([]Coordinate{Pt3(0, 0, 0), Pt3(10, 0, 0), Pt3(0, 0, 0)}, plan100, true)
		require.NoError(t, err)
		assert.False(t, res.IsValid)
		assert.True(t, hasMessage(res.Errors, "at least 4 points"))
	})

	t.Run("missing z", func(t *testing.T) {
		coords := []Coordinate{Pt3(0, 0, 0), Pt(10, 0), Pt3(10, 10, 0), Pt3(0, 10, 0), Pt3(0, 0, 0)}
		res, err := ValidateSpaceCoordinates(coords, plan100, true)
		require.NoError(t, err)
		assert.False(t, res.IsValid)
		assert.True(t, hasMessage(res.Errors, "coordinate 1 is missing a z"))
	})

	t.Run("flat floor warns on height", func(t *testing.T) {
		coords := []Coordinate{Pt3(0, 0, 0), Pt3(10, 0, 0), Pt3(10, 10, 0), Pt3(0, 10, 0), Pt3(0, 0, 0)}
		res, err := ValidateSpaceCoordinates(coords, plan100, true)
		require.NoError(t, err)
		assert.True(t, res.IsValid, "errors: %v", res.Errors)
		assert.True(t, hasMessage(res.Warnings, "below the expected minimum"))
	})

	t.Run("tall wall warns on height", func(t *testing.T) {
		coords := []Coordinate{Pt3(0, 0, 0), Pt3(10, 0, 0), Pt3(10, 0, 12), Pt3(0, 0, 12), Pt3(0, 0, 0)}
		res, err := ValidateSpaceCoordinates(coords, plan100, true)
		require.NoError(t, err)
		assert.True(t, res.IsValid, "errors: %v", res.Errors)
		assert.True(t, hasMessage(res.Warnings, "exceeds the expected maximum"))
	})

	t.Run("normal room", func(t *testing.T) {
		coords := []Coordinate{Pt3(0, 0, 0), Pt3(10, 0, 0), Pt3(10, 0, 3), Pt3(0, 0, 3), Pt3(0, 0, 0)}
		res, err := ValidateSpaceCoordinates(coords, plan100, true)
		require.NoError(t, err)
		assert.True(t, res.IsValid, "errors: %v", res.Errors)
		assert.Empty(t, res.Warnings)
	})
}

func TestValidateSpaceCoordinatesMalformed(t *testing.T) {
	_, err := ValidateSpaceCoordinates(nil, plan100, false)
	assert.ErrorIs(t, err, ErrMalformedInput)

	_, err = ValidateSpaceCoordinates([]Coordinate{Pt(0, 0), Pt(math.NaN(), 1), Pt(1, 1)}, plan100, false)
	assert.ErrorIs(t, err, ErrMalformedInput)
}

package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsInvalidShapes(t *testing.T) {
	_, err := New(2, 0, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "axis 1")

	_, err = New(2, -1)
	require.Error(t, err)
}

func TestNewWithoutAxesIsScalar(t *testing.T) {
	d, err := New()
	require.NoError(t, err)
	assert.Equal(t, 0, d.Rank())
	assert.Equal(t, 1, d.Len())

	d.Set(2.5)
	assert.Equal(t, 2.5, d.At())
}

func TestNewIsZeroFilled(t *testing.T) {
	d, err := New(2, 3)
	require.NoError(t, err)
	require.Equal(t, 6, d.Len())
	for i := 0; i < 2; i++ {
		for j := 0; j < 3; j++ {
			assert.Zero(t, d.At(i, j))
		}
	}
}

func TestFromSliceChecksLength(t *testing.T) {
	_, err := FromSlice([]float64{1, 2, 3}, 2, 2)
	require.Error(t, err)

	d, err := FromSlice([]float64{1, 2, 3, 4}, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 3.0, d.At(1, 0))
}

func TestFromSliceCopiesItsInput(t *testing.T) {
	src := []float64{1, 2}
	d, err := FromSlice(src, 2)
	require.NoError(t, err)

	src[0] = 99
	assert.Equal(t, 1.0, d.At(0), "tensor must not alias caller memory")
}

func TestAtSetRowMajorLayout(t *testing.T) {
	d := Must(New(2, 3, 4))
	d.Set(7.5, 1, 2, 3)

	assert.Equal(t, 7.5, d.At(1, 2, 3))
	// Row-major: the last axis varies fastest, so (1,2,3) is the final cell.
	vals := d.Values()
	assert.Equal(t, 7.5, vals[len(vals)-1])
}

func TestAtPanicsOutOfRange(t *testing.T) {
	d := Must(New(2, 2))

	assert.Panics(t, func() { d.At(2, 0) })
	assert.Panics(t, func() { d.At(0) }, "index count must match rank")
}

func TestShapeAndValuesAreCopies(t *testing.T) {
	d := Must(FromSlice([]float64{1, 2, 3, 4}, 2, 2))

	s := d.Shape()
	s[0] = 99
	assert.Equal(t, []int{2, 2}, d.Shape())

	v := d.Values()
	v[0] = 99
	assert.Equal(t, 1.0, d.At(0, 0))
}

func TestCloneIsIndependent(t *testing.T) {
	d := Must(FromSlice([]float64{1, 2}, 2))
	c := d.Clone()
	c.Set(42, 0)

	assert.Equal(t, 1.0, d.At(0))
	assert.Equal(t, 42.0, c.At(0))
}

func TestAxisIndexDecomposition(t *testing.T) {
	d := Must(New(2, 3, 4))
	// Walk every cell and check the per-axis coordinates recovered from the
	// flat position agree with the ones used to address it.
	flat := 0
	for i := 0; i < 2; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 4; k++ {
				require.Equal(t, i, d.axisIndex(flat, 0))
				require.Equal(t, j, d.axisIndex(flat, 1))
				require.Equal(t, k, d.axisIndex(flat, 2))
				flat++
			}
		}
	}
}

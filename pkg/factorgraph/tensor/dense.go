// Package tensor provides dense multi-dimensional arrays of float64 values,
// together with the axis-aware operations (outer products, contractions,
// broadcast sums and max-reductions) that the belief-propagation kernels are
// built on.
//
// This file defines the Dense type itself: a row-major flat buffer plus shape
// and stride bookkeeping. Axis order is semantically significant everywhere in
// this package; axis i of a factor potential corresponds to neighbor i of the
// factor that owns it, and every operation preserves that correspondence.
package tensor

import (
	"fmt"
)

// Dense is a dense tensor of float64 values in row-major (C) order.
// The zero value is not usable; construct instances with New or FromSlice.
type Dense struct {
	shape   []int
	strides []int
	data    []float64
}

// New creates and returns a zero-filled tensor with the given shape.
// Every axis length must be at least 1. A call with no axes produces a
// rank-0 (scalar) tensor holding a single value.
func New(shape ...int) (*Dense, error) {
	for i, n := range shape {
		if n < 1 {
			return nil, fmt.Errorf("tensor: axis %d has invalid length %d", i, n)
		}
	}
	d := &Dense{
		shape:   append([]int(nil), shape...),
		strides: stridesFor(shape),
		data:    make([]float64, sizeOf(shape)),
	}
	return d, nil
}

// FromSlice creates a tensor with the given shape, copying its values from
// data. The length of data must equal the product of the axis lengths.
func FromSlice(data []float64, shape ...int) (*Dense, error) {
	d, err := New(shape...)
	if err != nil {
		return nil, err
	}
	if len(data) != len(d.data) {
		return nil, fmt.Errorf("tensor: shape %v wants %d values, got %d", shape, len(d.data), len(data))
	}
	copy(d.data, data)
	return d, nil
}

// Must unwraps a (*Dense, error) pair, panicking on error. It is intended for
// statically known shapes, such as fixtures in tests and examples.
func Must(d *Dense, err error) *Dense {
	if err != nil {
		panic(err)
	}
	return d
}

// Rank returns the number of axes.
func (d *Dense) Rank() int { return len(d.shape) }

// Len returns the total number of stored values.
func (d *Dense) Len() int { return len(d.data) }

// Shape returns a copy of the axis lengths.
func (d *Dense) Shape() []int {
	return append([]int(nil), d.shape...)
}

// AxisLen returns the length of a single axis without copying the shape.
func (d *Dense) AxisLen(axis int) int {
	if axis < 0 || axis >= len(d.shape) {
		panic(fmt.Sprintf("tensor: axis %d out of range for rank %d", axis, len(d.shape)))
	}
	return d.shape[axis]
}

// At returns the value at the given multi-index.
// It panics if the number of indices does not match the rank or if any index
// is out of range; both indicate a programming error, not a data condition.
func (d *Dense) At(indices ...int) float64 {
	return d.data[d.offset(indices)]
}

// Set stores v at the given multi-index, with the same panic behavior as At.
func (d *Dense) Set(v float64, indices ...int) {
	d.data[d.offset(indices)] = v
}

// Values returns a copy of the underlying values in row-major order.
// For a rank-1 tensor this is the vector itself.
func (d *Dense) Values() []float64 {
	return append([]float64(nil), d.data...)
}

// Clone returns a deep copy of the tensor.
func (d *Dense) Clone() *Dense {
	return &Dense{
		shape:   append([]int(nil), d.shape...),
		strides: append([]int(nil), d.strides...),
		data:    append([]float64(nil), d.data...),
	}
}

// offset converts a multi-index to a flat position in the data buffer.
func (d *Dense) offset(indices []int) int {
	if len(indices) != len(d.shape) {
		panic(fmt.Sprintf("tensor: got %d indices for rank %d", len(indices), len(d.shape)))
	}
	off := 0
	for i, idx := range indices {
		if idx < 0 || idx >= d.shape[i] {
			panic(fmt.Sprintf("tensor: index %d out of range [0,%d) on axis %d", idx, d.shape[i], i))
		}
		off += idx * d.strides[i]
	}
	return off
}

// axisIndex recovers the coordinate along one axis from a flat position.
// It is the workhorse of every single-pass kernel in this package: walking the
// flat buffer once while decomposing positions avoids materializing
// multi-indices.
func (d *Dense) axisIndex(flat, axis int) int {
	return (flat / d.strides[axis]) % d.shape[axis]
}

// stridesFor computes row-major strides for a shape: the last axis is
// contiguous and each earlier axis strides over the block to its right.
func stridesFor(shape []int) []int {
	strides := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= shape[i]
	}
	return strides
}

// sizeOf returns the product of the axis lengths (1 for rank 0).
func sizeOf(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

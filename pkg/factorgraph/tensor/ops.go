// Package tensor provides dense multi-dimensional arrays of float64 values and
// the axis-aware operations the belief-propagation kernels are built on.
//
// This file implements the operations themselves. Sum-product factor messages
// are an Outer followed by a Contract; max-sum factor messages are a Log, a
// BroadcastAdd per incoming message and a MaxExcept. Each kernel makes a
// single pass over the flat buffer, recovering per-axis coordinates from flat
// positions instead of materializing multi-indices.
package tensor

import (
	"fmt"
	"math"
)

// Outer returns the outer product of one or more vectors. Axis i of the result
// corresponds to vectors[i], so its shape is (len(vectors[0]), ...,
// len(vectors[n-1])) and each cell holds the product of one entry per vector.
func Outer(vectors ...[]float64) (*Dense, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("tensor: outer product of no vectors")
	}
	shape := make([]int, len(vectors))
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, fmt.Errorf("tensor: outer product with empty vector at axis %d", i)
		}
		shape[i] = len(v)
	}
	out, err := New(shape...)
	if err != nil {
		return nil, err
	}
	for flat := range out.data {
		p := 1.0
		for axis, v := range vectors {
			p *= v[out.axisIndex(flat, axis)]
		}
		out.data[flat] = p
	}
	return out, nil
}

// Contract computes the tensor-dot product of a and b: it multiplies them cell
// by cell along the paired axes (axesA[i] of a against axesB[i] of b) and sums
// over those pairs. The result keeps a's uncontracted axes followed by b's
// uncontracted axes, both in their original order.
//
// The pairing is positional: paired axes must have equal lengths, and an axis
// may appear at most once per side.
func Contract(a, b *Dense, axesA, axesB []int) (*Dense, error) {
	if len(axesA) != len(axesB) {
		return nil, fmt.Errorf("tensor: contraction pairs %d axes against %d", len(axesA), len(axesB))
	}
	if err := checkAxes(a, axesA); err != nil {
		return nil, err
	}
	if err := checkAxes(b, axesB); err != nil {
		return nil, err
	}
	for i := range axesA {
		if a.shape[axesA[i]] != b.shape[axesB[i]] {
			return nil, fmt.Errorf("tensor: contracted axis %d of shape %v does not match axis %d of shape %v",
				axesA[i], a.shape, axesB[i], b.shape)
		}
	}

	keepA := complementAxes(a.Rank(), axesA)
	keepB := complementAxes(b.Rank(), axesB)

	outShape := make([]int, 0, len(keepA)+len(keepB))
	for _, ax := range keepA {
		outShape = append(outShape, a.shape[ax])
	}
	for _, ax := range keepB {
		outShape = append(outShape, b.shape[ax])
	}
	out, err := New(outShape...)
	if err != nil {
		return nil, err
	}

	// Strides of the output split into the part addressed by a's kept axes
	// and the part addressed by b's kept axes.
	outStridesA := out.strides[:len(keepA)]
	outStridesB := out.strides[len(keepA):]

	// One pass over a; for each cell the contracted coordinates pin down a
	// base position in b, and the remaining freedom is an odometer over b's
	// kept axes.
	bKept := make([]int, len(keepB))
	for aFlat, av := range a.data {
		outBase := 0
		for i, ax := range keepA {
			outBase += a.axisIndex(aFlat, ax) * outStridesA[i]
		}
		bBase := 0
		for i, ax := range axesA {
			bBase += a.axisIndex(aFlat, ax) * b.strides[axesB[i]]
		}

		if len(keepB) == 0 {
			out.data[outBase] += av * b.data[bBase]
			continue
		}
		for i := range bKept {
			bKept[i] = 0
		}
		for {
			bOff, outOff := bBase, outBase
			for i, ax := range keepB {
				bOff += bKept[i] * b.strides[ax]
				outOff += bKept[i] * outStridesB[i]
			}
			out.data[outOff] += av * b.data[bOff]
			if !advance(bKept, b.shape, keepB) {
				break
			}
		}
	}
	return out, nil
}

// BroadcastAdd adds v along the given axis, in place: every cell whose
// coordinate on that axis is k gains v[k]. The length of v must equal the
// axis length. This is how a 1-D log-domain message is replicated across all
// other axes of a potential.
func (d *Dense) BroadcastAdd(axis int, v []float64) error {
	if axis < 0 || axis >= d.Rank() {
		return fmt.Errorf("tensor: broadcast axis %d out of range for rank %d", axis, d.Rank())
	}
	if len(v) != d.shape[axis] {
		return fmt.Errorf("tensor: broadcast vector has length %d, axis %d has length %d", len(v), axis, d.shape[axis])
	}
	for flat := range d.data {
		d.data[flat] += v[d.axisIndex(flat, axis)]
	}
	return nil
}

// MaxExcept reduces the tensor to a vector over the kept axis by taking the
// maximum over every other axis: result[k] is the largest cell whose
// coordinate on the kept axis is k.
func (d *Dense) MaxExcept(keep int) ([]float64, error) {
	if keep < 0 || keep >= d.Rank() {
		return nil, fmt.Errorf("tensor: kept axis %d out of range for rank %d", keep, d.Rank())
	}
	out := make([]float64, d.shape[keep])
	for i := range out {
		out[i] = math.Inf(-1)
	}
	for flat, v := range d.data {
		k := d.axisIndex(flat, keep)
		if v > out[k] {
			out[k] = v
		}
	}
	return out, nil
}

// Log returns a new tensor with the natural logarithm applied cell-wise.
// Zero cells map to -Inf, which max-reductions handle naturally; callers that
// need finite values must keep their inputs strictly positive.
func (d *Dense) Log() *Dense {
	out := d.Clone()
	for i, v := range out.data {
		out.data[i] = math.Log(v)
	}
	return out
}

// checkAxes validates that every axis is in range and none repeats.
func checkAxes(d *Dense, axes []int) error {
	seen := make(map[int]struct{}, len(axes))
	for _, ax := range axes {
		if ax < 0 || ax >= d.Rank() {
			return fmt.Errorf("tensor: axis %d out of range for rank %d", ax, d.Rank())
		}
		if _, dup := seen[ax]; dup {
			return fmt.Errorf("tensor: axis %d contracted twice", ax)
		}
		seen[ax] = struct{}{}
	}
	return nil
}

// complementAxes returns the axes of a rank-n tensor not listed in axes,
// in ascending order.
func complementAxes(n int, axes []int) []int {
	drop := make(map[int]struct{}, len(axes))
	for _, ax := range axes {
		drop[ax] = struct{}{}
	}
	keep := make([]int, 0, n-len(axes))
	for ax := 0; ax < n; ax++ {
		if _, ok := drop[ax]; !ok {
			keep = append(keep, ax)
		}
	}
	return keep
}

// advance steps the odometer idx over the listed axes of shape, returning
// false once every combination has been visited.
func advance(idx []int, shape []int, axes []int) bool {
	for i := len(idx) - 1; i >= 0; i-- {
		idx[i]++
		if idx[i] < shape[axes[i]] {
			return true
		}
		idx[i] = 0
	}
	return false
}

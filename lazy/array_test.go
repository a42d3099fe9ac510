// Copyright (c) 2024, The Popnet Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lazy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScalarEval(t *testing.T) {
	ar := Scalar(3.5)
	require.NoError(t, ar.SetShape(4))
	vals, err := ar.EvalAll()
	require.NoError(t, err)
	require.Equal(t, []float64{3.5, 3.5, 3.5, 3.5}, vals)

	r, err := ar.Eval(true)
	require.NoError(t, err)
	require.True(t, r.Uniform)
	require.Equal(t, 3.5, r.Scalar)
}

func TestSequenceShape(t *testing.T) {
	ar := Sequence(1, 2, 3)
	require.True(t, ar.Shaped())
	require.NoError(t, ar.SetShape(3))
	err := ar.SetShape(5)
	require.True(t, errors.Is(err, ErrShapeMismatch))
}

func TestUnshapedEval(t *testing.T) {
	ar := Scalar(1)
	_, err := ar.EvalAll()
	require.True(t, errors.Is(err, ErrUnshaped))
}

func TestFuncEval(t *testing.T) {
	ar := Func(func(i int) float64 { return float64(i * i) })
	require.NoError(t, ar.SetShape(4))
	vals, err := ar.EvalAll()
	require.NoError(t, err)
	require.Equal(t, []float64{0, 1, 4, 9}, vals)
}

func TestEvalIdempotent(t *testing.T) {
	ar := Random(Normal(0, 1, 99))
	require.NoError(t, ar.SetShape(8))
	v1, err := ar.EvalAll()
	require.NoError(t, err)
	cp := make([]float64, len(v1))
	copy(cp, v1)
	v2, err := ar.EvalAll()
	require.NoError(t, err)
	require.Equal(t, cp, v2)
}

func TestRandomSeedDeterminism(t *testing.T) {
	a1 := Random(Uniform(0, 1, 7))
	a2 := Random(Uniform(0, 1, 7))
	require.NoError(t, a1.SetShape(10))
	require.NoError(t, a2.SetShape(10))
	v1, err := a1.EvalAll()
	require.NoError(t, err)
	v2, err := a2.EvalAll()
	require.NoError(t, err)
	require.Equal(t, v1, v2)

	a3 := Random(Uniform(0, 1, 8))
	require.NoError(t, a3.SetShape(10))
	v3, err := a3.EvalAll()
	require.NoError(t, err)
	require.NotEqual(t, v1, v3)
}

// masked evaluation must see the same values a full evaluation would,
// whichever way the mask partitions the shape
func TestEvalMaskedPartition(t *testing.T) {
	full := Random(Normal(20, 2, 42))
	require.NoError(t, full.SetShape(10))
	all, err := full.EvalAll()
	require.NoError(t, err)

	even := make([]bool, 10)
	odd := make([]bool, 10)
	for i := range even {
		even[i] = i%2 == 0
		odd[i] = i%2 == 1
	}
	p1 := Random(Normal(20, 2, 42))
	require.NoError(t, p1.SetShape(10))
	ev, err := p1.EvalMasked(even)
	require.NoError(t, err)
	p2 := Random(Normal(20, 2, 42))
	require.NoError(t, p2.SetShape(10))
	od, err := p2.EvalMasked(odd)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.Equal(t, all[2*i], ev[i])
		require.Equal(t, all[2*i+1], od[i])
	}
}

func TestValueSetValue(t *testing.T) {
	ar := Scalar(1)
	require.NoError(t, ar.SetShape(3))
	require.NoError(t, ar.SetValue(1, 5))
	v, err := ar.Value(1)
	require.NoError(t, err)
	require.Equal(t, 5.0, v)
	v, err = ar.Value(0)
	require.NoError(t, err)
	require.Equal(t, 1.0, v)
	_, err = ar.Value(9)
	require.True(t, errors.Is(err, ErrIndexRange))
}

func TestExpand(t *testing.T) {
	ar := Func(func(i int) float64 { return float64(i) })
	require.NoError(t, ar.SetShape(3))
	_, err := ar.EvalAll()
	require.NoError(t, err)
	require.NoError(t, ar.SetValue(1, 100))

	// old values land on the mask-true positions
	mask := []bool{true, false, true, false, true, false}
	require.NoError(t, ar.Expand(6, mask))
	vals, err := ar.EvalAll()
	require.NoError(t, err)
	require.Equal(t, 0.0, vals[0])
	require.Equal(t, 100.0, vals[2])
	require.Equal(t, 2.0, vals[4])

	seq := Sequence(1, 2)
	err = seq.Expand(4, []bool{true, true, false, false})
	require.Error(t, err)
}

func TestTransform(t *testing.T) {
	ar := Random(Uniform(0, 1, 3))
	require.NoError(t, ar.SetShape(5))
	orig, err := ar.EvalAll()
	require.NoError(t, err)
	cp := make([]float64, len(orig))
	copy(cp, orig)

	ta, err := ar.Transform(func(v float64) float64 { return v * 1000 })
	require.NoError(t, err)
	require.Equal(t, SequenceSource, ta.Kind)
	tv, err := ta.EvalAll()
	require.NoError(t, err)
	for i := range cp {
		require.InDelta(t, cp[i]*1000, tv[i], 1e-12)
	}

	sa, err := Scalar(2).Transform(func(v float64) float64 { return v + 1 })
	require.NoError(t, err)
	require.Equal(t, 3.0, sa.Val)
}

func TestClone(t *testing.T) {
	ar := Random(Normal(0, 1, 5))
	require.NoError(t, ar.SetShape(4))
	v1, err := ar.EvalAll()
	require.NoError(t, err)

	// clone is unevaluated and unshaped: it can take a different shape
	cl := ar.Clone()
	require.False(t, cl.Shaped())
	require.NoError(t, cl.SetShape(6))
	v2, err := cl.EvalAll()
	require.NoError(t, err)
	require.Len(t, v2, 6)
	require.Equal(t, v1[0], v2[0]) // same seed, same stream

	sq := Sequence(1, 2, 3).Clone()
	require.True(t, sq.Shaped())
	require.Equal(t, 3, sq.Sz)
}

func TestSimplify(t *testing.T) {
	r := Simplify([]float64{2, 2, 2})
	require.True(t, r.Uniform)
	require.Equal(t, 2.0, r.Scalar)
	require.Equal(t, []float64{2, 2, 2}, r.Slice(3))

	r = Simplify([]float64{1, 2})
	require.False(t, r.Uniform)

	r = Simplify(nil)
	require.False(t, r.Uniform)
}

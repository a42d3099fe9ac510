// Copyright (c) 2024, The Popnet Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pop

import (
	"errors"
	"testing"

	"github.com/nsim/popnet/cells"
	"github.com/nsim/popnet/lazy"
	"github.com/nsim/popnet/nodes"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func TestViewBasics(t *testing.T) {
	pp := newTestPop(t, 10)
	vw, err := pp.ViewAt(RangeMask(1, 8, 2)) // 1, 3, 5, 7
	require.NoError(t, err)
	require.Equal(t, 4, vw.Size())
	require.Equal(t, []int{1, 3, 5, 7}, vw.RootIndices())
	require.Same(t, pp, vw.Root())
	require.Equal(t, pp.CellType(), vw.CellType())
	require.Equal(t, `view of "population0" with size 4`, vw.Label())

	id, err := vw.CellAt(2)
	require.NoError(t, err)
	require.Equal(t, 5, id.Idx)

	_, err = vw.CellAt(4)
	require.True(t, errors.Is(err, ErrIDRange))
}

func TestViewIDToIndexRoundTrip(t *testing.T) {
	pp := newTestPop(t, 10)
	vw, err := pp.ViewAt(IndexMask(2, 5, 9))
	require.NoError(t, err)
	for i := 0; i < vw.Size(); i++ {
		id, err := vw.CellAt(i)
		require.NoError(t, err)
		k, err := vw.IDToIndex(id)
		require.NoError(t, err)
		require.Equal(t, i, k)
	}
	out, err := pp.CellAt(3)
	require.NoError(t, err)
	_, err = vw.IDToIndex(out)
	require.True(t, errors.Is(err, ErrNotPresent))

	// parent <-> view index mapping
	k, err := vw.IndexFromParentIndex(5)
	require.NoError(t, err)
	require.Equal(t, 1, k)
	require.Equal(t, 9, vw.IndexInParent(2))
}

func TestViewSetWritesThrough(t *testing.T) {
	pp := newTestPop(t, 6)
	vw, err := pp.ViewAt(IndexMask(1, 3, 5))
	require.NoError(t, err)

	require.NoError(t, vw.Set(map[string]*lazy.Array{"v_thresh": lazy.Scalar(-55)}))
	vals, err := pp.Get([]string{"v_thresh"}, false, false)
	require.NoError(t, err)
	require.Equal(t, []float64{-50, -55, -50, -55, -50, -55}, vals["v_thresh"].Values)

	// view-shaped sequence: length is the view size
	require.NoError(t, vw.Set(map[string]*lazy.Array{"tau_m": lazy.Sequence(11, 12, 13)}))
	vv, err := vw.Get([]string{"tau_m"}, false, false)
	require.NoError(t, err)
	require.Equal(t, []float64{11, 12, 13}, vv["tau_m"].Values)
	pv, err := pp.Get([]string{"tau_m"}, false, false)
	require.NoError(t, err)
	require.Equal(t, []float64{20, 11, 20, 12, 20, 13}, pv["tau_m"].Values)

	err = vw.Set(map[string]*lazy.Array{"tau_m": lazy.Sequence(1, 2)})
	require.True(t, errors.Is(err, lazy.ErrShapeMismatch))
}

func TestViewOfView(t *testing.T) {
	pp := newTestPop(t, 10)
	vw, err := pp.ViewAt(RangeMask(0, 10, 2)) // 0,2,4,6,8
	require.NoError(t, err)
	sub, err := vw.ViewAt(IndexMask(1, 3)) // root 2, 6
	require.NoError(t, err)
	require.Equal(t, []int{2, 6}, sub.RootIndices())
	require.Same(t, pp, sub.Root())

	require.NoError(t, sub.Set(map[string]*lazy.Array{"tau_m": lazy.Scalar(7)}))
	pv, err := pp.Get([]string{"tau_m"}, false, false)
	require.NoError(t, err)
	require.Equal(t, []float64{20, 20, 7, 20, 20, 20, 7, 20, 20, 20}, pv["tau_m"].Values)
}

func TestViewMaskCorrections(t *testing.T) {
	pp := newTestPop(t, 5)
	// duplicates collapse, order is restored
	vw, err := pp.ViewAt(IndexMask(3, 1, 3))
	require.NoError(t, err)
	require.Equal(t, []int{1, 3}, vw.RootIndices())

	_, err = pp.ViewAt(IndexMask(5))
	require.True(t, errors.Is(err, ErrIDRange))
}

func TestViewInitialize(t *testing.T) {
	pp := newTestPop(t, 4)
	vw, err := pp.ViewAt(IndexMask(0, 2))
	require.NoError(t, err)

	require.NoError(t, vw.Initialize(map[string]*lazy.Array{"v": lazy.Sequence(-70, -72)}))
	for i, want := range []float64{-70, -65, -72, -65} {
		id, err := pp.CellAt(i)
		require.NoError(t, err)
		v, err := id.InitialValue("v")
		require.NoError(t, err)
		require.Equal(t, want, v)
	}

	_, err = vw.InitialValues()
	require.True(t, errors.Is(err, ErrViewInitialValues))
}

func TestViewSameCells(t *testing.T) {
	pp := newTestPop(t, 8)
	v1, err := pp.ViewAt(RangeMask(0, 8, 2))
	require.NoError(t, err)
	v2, err := pp.ViewAt(IndexMask(0, 2, 4, 6))
	require.NoError(t, err)
	require.True(t, v1.SameCells(v2))

	v3, err := pp.ViewAt(IndexMask(0, 2, 4))
	require.NoError(t, err)
	require.False(t, v1.SameCells(v3))

	other := newTestPop(t, 8)
	v4, err := other.ViewAt(RangeMask(0, 8, 2))
	require.NoError(t, err)
	require.False(t, v1.SameCells(v4))
}

func TestViewLocalityAndGather(t *testing.T) {
	_, sts := nodes.NewSimGroup(2)
	pp, err := New(6, cells.NewCondExp(), &Config{Registry: &Registry{}, Node: sts[0]})
	require.NoError(t, err)
	vw, err := pp.ViewAt(IndexMask(1, 2, 4)) // local on rank 0: 2, 4
	require.NoError(t, err)
	require.Equal(t, 2, vw.LocalSize())
	require.Equal(t, []bool{false, true, true}, vw.LocalMask())

	// without gather, only local view cells are returned
	vals, err := vw.Get([]string{"tau_m"}, false, false)
	require.NoError(t, err)
	require.Equal(t, []float64{20, 20}, vals["tau_m"].Values)
}

func TestViewSampleAndCellAsView(t *testing.T) {
	pp := newTestPop(t, 10)
	vw, err := pp.ViewAt(RangeMask(0, 10, 2))
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(2))
	sub, err := vw.Sample(3, rng)
	require.NoError(t, err)
	require.Equal(t, 3, sub.Size())
	for _, gi := range sub.RootIndices() {
		require.Equal(t, 0, gi%2) // sampled from the even cells only
	}

	id, err := pp.CellAt(4)
	require.NoError(t, err)
	one, err := id.AsView()
	require.NoError(t, err)
	require.Equal(t, 1, one.Size())
	require.Equal(t, []int{4}, one.RootIndices())
}

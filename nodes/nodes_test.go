// Copyright (c) 2024, The Popnet Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nodes

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSoloState(t *testing.T) {
	st := Solo()
	require.True(t, st.Coordinator())
	require.Equal(t, 1, st.NProcs)
	mask := st.LocalMask(4)
	require.Equal(t, []bool{true, true, true, true}, mask)
}

func TestLocalMaskRoundRobin(t *testing.T) {
	st0 := &State{Rank: 0, NProcs: 2}
	st1 := &State{Rank: 1, NProcs: 2}
	m0 := st0.LocalMask(5)
	m1 := st1.LocalMask(5)
	require.Equal(t, []bool{true, false, true, false, true}, m0)
	require.Equal(t, []bool{false, true, false, true, false}, m1)
	// mutually exclusive, globally covering
	for i := 0; i < 5; i++ {
		require.True(t, m0[i] != m1[i])
	}
}

func TestSoloExchange(t *testing.T) {
	se := &SoloExchange{}
	out, err := se.GatherValues([]int{0, 1, 2}, []float64{5, 6, 7}, 3)
	require.NoError(t, err)
	require.Equal(t, []float64{5, 6, 7}, out)

	_, err = se.GatherValues([]int{0}, []float64{1, 2}, 3)
	require.Error(t, err)
	_, err = se.GatherValues([]int{9}, []float64{1}, 3)
	require.Error(t, err)
}

func TestSimGroupGather(t *testing.T) {
	const n = 8
	_, sts := NewSimGroup(2)
	res := make([][]float64, 2)
	var wg sync.WaitGroup
	for r := 0; r < 2; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			st := sts[r]
			mask := st.LocalMask(n)
			var idxs []int
			var vals []float64
			for i, lc := range mask {
				if lc {
					idxs = append(idxs, i)
					vals = append(vals, float64(i*10))
				}
			}
			out, err := st.Exch.GatherValues(idxs, vals, n)
			require.NoError(t, err)
			res[r] = out
		}(r)
	}
	wg.Wait()

	want := make([]float64, n)
	for i := range want {
		want[i] = float64(i * 10)
	}
	require.Equal(t, want, res[0])
	require.Equal(t, want, res[1])
}

func TestSimGroupRepeatedRounds(t *testing.T) {
	_, sts := NewSimGroup(2)
	var wg sync.WaitGroup
	for r := 0; r < 2; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			st := sts[r]
			for round := 0; round < 50; round++ {
				out, err := st.Exch.GatherValues([]int{st.Rank}, []float64{float64(round)}, 2)
				require.NoError(t, err)
				require.Equal(t, []float64{float64(round), float64(round)}, out)
			}
		}(r)
	}
	wg.Wait()
}

// a rank still returning from one round must never see the buffer of the
// next round that a faster rank has already started, even when consecutive
// rounds carry different sizes and values
func TestSimGroupConsecutiveGathers(t *testing.T) {
	_, sts := NewSimGroup(3)
	var wg sync.WaitGroup
	for r := 0; r < 3; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			st := sts[r]
			for round := 0; round < 50; round++ {
				size := 3 + round%4
				mask := st.LocalMask(size)
				var idxs []int
				var vals []float64
				for i, lc := range mask {
					if lc {
						idxs = append(idxs, i)
						vals = append(vals, float64(round*100+i))
					}
				}
				out, err := st.Exch.GatherValues(idxs, vals, size)
				require.NoError(t, err)
				require.Len(t, out, size)
				for i, v := range out {
					require.Equal(t, float64(round*100+i), v)
				}
			}
		}(r)
	}
	wg.Wait()
}

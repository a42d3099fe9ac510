// Copyright (c) 2024, The Popnet Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package record

import (
	"errors"
	"sync"
	"testing"

	"github.com/nsim/popnet/nodes"
	"github.com/stretchr/testify/require"
)

func TestSpikeRecording(t *testing.T) {
	rc := NewRecorder("p0", 4, nodes.Solo())
	rc.Record([]string{Spikes}, []int{0, 1, 2, 3}, 0, "")
	require.True(t, rc.Recorded(Spikes))
	require.False(t, rc.Recorded("v"))

	require.NoError(t, rc.AddSpikes(1.0, []int{0, 2}))
	require.NoError(t, rc.AddSpikes(2.0, []int{2}))

	cts, err := rc.Count(Spikes, false, nil)
	require.NoError(t, err)
	require.Equal(t, map[int]int{0: 1, 1: 0, 2: 2, 3: 0}, cts)

	// filter restricts to the given cells
	cts, err = rc.Count(Spikes, false, []int{2, 3})
	require.NoError(t, err)
	require.Equal(t, map[int]int{2: 2, 3: 0}, cts)
}

func TestSpikesNotRecorded(t *testing.T) {
	rc := NewRecorder("p0", 4, nodes.Solo())
	err := rc.AddSpikes(1.0, []int{0})
	require.True(t, errors.Is(err, ErrNotRecorded))
	_, err = rc.Count(Spikes, false, nil)
	require.True(t, errors.Is(err, ErrNothingToWrite))
}

func TestAnalogRecording(t *testing.T) {
	rc := NewRecorder("p0", 4, nodes.Solo())
	rc.Record([]string{"v"}, []int{1, 3}, 0.1, "")
	require.NoError(t, rc.AddSample("v", 0.1, []int{1, 3}, []float64{-65, -64}))
	require.NoError(t, rc.AddSample("v", 0.2, []int{1, 3}, []float64{-63, -62}))

	bk, err := rc.Get(nil, nil, false)
	require.NoError(t, err)
	require.Equal(t, []string{"v"}, bk.Variables())
	dt := bk.Tables["v"]
	require.Equal(t, 2, dt.Rows)
	require.Equal(t, []int{1, 3}, bk.Channels["v"])
	require.Equal(t, -64.0, dt.CellFloat("Ch3", 0))
	require.Equal(t, -63.0, dt.CellFloat("Ch1", 1))
}

func TestGetFilterAndClear(t *testing.T) {
	rc := NewRecorder("p0", 4, nodes.Solo())
	rc.Record([]string{Spikes}, []int{0, 1, 2, 3}, 0, "")
	require.NoError(t, rc.AddSpikes(1.0, []int{0, 1, 2}))

	bk, err := rc.Get([]string{Spikes}, []int{1}, true)
	require.NoError(t, err)
	dt := bk.Tables[Spikes]
	require.Equal(t, 1, dt.Rows)
	require.Equal(t, 1.0, dt.CellFloat("Channel", 0))

	// clear dropped the samples but kept the recording configuration
	bk, err = rc.Get([]string{Spikes}, nil, false)
	require.NoError(t, err)
	require.Equal(t, 0, bk.Tables[Spikes].Rows)

	_, err = rc.Get([]string{"v"}, nil, false)
	require.True(t, errors.Is(err, ErrNothingToWrite))
}

func TestRecordUnionsCells(t *testing.T) {
	rc := NewRecorder("p0", 6, nodes.Solo())
	rc.Record([]string{Spikes}, []int{0, 1, 2}, 0, "")
	rc.Record([]string{Spikes}, []int{3, 4, 5}, 0, "")

	require.NoError(t, rc.AddSpikes(1.0, []int{1, 4}))
	cts, err := rc.Count(Spikes, false, nil)
	require.NoError(t, err)
	require.Equal(t, map[int]int{0: 0, 1: 1, 2: 0, 3: 0, 4: 1, 5: 0}, cts)
}

func TestRecordUnionKeepsAnalogSamples(t *testing.T) {
	rc := NewRecorder("p0", 4, nodes.Solo())
	rc.Record([]string{"v"}, []int{0, 1}, 0.1, "")
	require.NoError(t, rc.AddSample("v", 0.1, []int{0, 1}, []float64{-65, -64}))

	rc.Record([]string{"v"}, []int{2}, 0.1, "")
	require.NoError(t, rc.AddSample("v", 0.2, []int{0, 1, 2}, []float64{-63, -62, -61}))

	bk, err := rc.Get([]string{"v"}, nil, false)
	require.NoError(t, err)
	dt := bk.Tables["v"]
	require.Equal(t, []int{0, 1, 2}, bk.Channels["v"])
	require.Equal(t, 2, dt.Rows)
	// the pre-union sample survives; the new column is zero for it
	require.Equal(t, -64.0, dt.CellFloat("Ch1", 0))
	require.Equal(t, 0.0, dt.CellFloat("Ch2", 0))
	require.Equal(t, -61.0, dt.CellFloat("Ch2", 1))
}

func TestCountGatherKeysAreRecordedCells(t *testing.T) {
	_, sts := nodes.NewSimGroup(2)
	res := make([]map[int]int, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for r := 0; r < 2; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			rc := NewRecorder("p0", 6, sts[r])
			rc.Record([]string{Spikes}, []int{1, 2}, 0, "")
			if r == 0 {
				errs[r] = rc.AddSpikes(1.0, []int{2})
			} else {
				errs[r] = rc.AddSpikes(1.0, []int{1})
			}
			if errs[r] != nil {
				return
			}
			res[r], errs[r] = rc.Count(Spikes, true, nil)
		}(r)
	}
	wg.Wait()

	for r := 0; r < 2; r++ {
		require.NoError(t, errs[r])
		// only the recorded cells appear, with counts merged across ranks
		require.Equal(t, map[int]int{1: 1, 2: 1}, res[r])
	}
}

func TestBlockShiftAndMerge(t *testing.T) {
	r1 := NewRecorder("a", 2, nodes.Solo())
	r1.Record([]string{Spikes, "v"}, []int{0, 1}, 0, "")
	require.NoError(t, r1.AddSpikes(1.0, []int{1}))
	require.NoError(t, r1.AddSample("v", 0.1, []int{0, 1}, []float64{-65, -60}))

	r2 := NewRecorder("b", 2, nodes.Solo())
	r2.Record([]string{Spikes, "v"}, []int{0, 1}, 0, "")
	require.NoError(t, r2.AddSpikes(2.0, []int{0}))
	require.NoError(t, r2.AddSample("v", 0.1, []int{0, 1}, []float64{-55, -50}))

	b1, err := r1.Get(nil, nil, false)
	require.NoError(t, err)
	b2, err := r2.Get(nil, nil, false)
	require.NoError(t, err)

	b2.ShiftChannels(2)
	require.Equal(t, []int{2, 3}, b2.Channels["v"])
	require.Equal(t, 2.0, b2.Tables[Spikes].CellFloat("Channel", 0))
	require.Equal(t, -50.0, b2.Tables["v"].CellFloat("Ch3", 0))

	b1.Merge(b2)
	require.Equal(t, 2, b1.Tables[Spikes].Rows)
	require.Equal(t, []int{0, 1, 2, 3}, b1.Channels["v"])
	require.Equal(t, -65.0, b1.Tables["v"].CellFloat("Ch0", 0))
	require.Equal(t, -55.0, b1.Tables["v"].CellFloat("Ch2", 0))
}

func TestRenumberChannels(t *testing.T) {
	rc := NewRecorder("a", 4, nodes.Solo())
	rc.Record([]string{Spikes, "v"}, []int{1, 3}, 0, "")
	require.NoError(t, rc.AddSpikes(1.0, []int{3}))
	require.NoError(t, rc.AddSample("v", 0.1, []int{1, 3}, []float64{-65, -60}))

	bk, err := rc.Get(nil, nil, false)
	require.NoError(t, err)
	// root indices 1,3 -> container indices 0,1
	amap := map[int]int{1: 0, 3: 1}
	bk.RenumberChannels(func(ch int) int { return amap[ch] })
	require.Equal(t, []int{0, 1}, bk.Channels["v"])
	require.Equal(t, 1.0, bk.Tables[Spikes].CellFloat("Channel", 0))
	require.Equal(t, -60.0, bk.Tables["v"].CellFloat("Ch1", 0))
}

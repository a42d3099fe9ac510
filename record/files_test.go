// Copyright (c) 2024, The Popnet Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package record

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nsim/popnet/nodes"
	"github.com/stretchr/testify/require"
)

func readLines(t *testing.T, fnm string) []string {
	t.Helper()
	b, err := os.ReadFile(fnm)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(b), "\n"), "\n")
}

func TestWriteFiles(t *testing.T) {
	dir := t.TempDir()
	rc := NewRecorder("p0", 4, nodes.Solo())
	rc.Record([]string{Spikes, "v"}, []int{1}, 0, "")
	require.NoError(t, rc.AddSpikes(1.0, []int{1}))
	require.NoError(t, rc.AddSample("v", 1.5, []int{1}, []float64{2}))

	fn := filepath.Join(dir, "out")
	require.NoError(t, rc.Write(fn, nil, false, nil, false))

	lines := readLines(t, fn+".v")
	require.Equal(t, []string{
		"# population = p0",
		"# variable = v",
		"1.5\t2",
	}, lines)

	lines = readLines(t, fn+".spikes")
	require.Equal(t, []string{
		"# population = p0",
		"# variable = spikes",
		"1\t1",
	}, lines)
}

func TestWriteRankSuffix(t *testing.T) {
	dir := t.TempDir()
	st := &nodes.State{Rank: 1, NProcs: 2, Exch: &nodes.SoloExchange{}}
	rc := NewRecorder("p0", 4, st)
	rc.Record([]string{Spikes}, []int{1}, 0, "")
	require.NoError(t, rc.AddSpikes(1.0, []int{1}))

	// without gather each node writes its own data under a rank suffix
	fn := filepath.Join(dir, "local")
	require.NoError(t, rc.Write(fn, nil, false, nil, false))
	_, err := os.Stat(fn + ".1.spikes")
	require.NoError(t, err)

	// with gather only the coordinator writes
	fn2 := filepath.Join(dir, "gathered")
	require.NoError(t, rc.Write(fn2, nil, true, nil, false))
	_, err = os.Stat(fn2 + ".spikes")
	require.True(t, os.IsNotExist(err))
}

// Copyright (c) 2024, The Popnet Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package space

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLine(t *testing.T) {
	ln := &Line{Dx: 2, X0: 1, Y: 5}
	ps := ln.GeneratePositions(3)
	require.Equal(t, 3, ps.Dim(0))
	require.Equal(t, 3, ps.Dim(1))
	require.Equal(t, float32(1), ps.Values[0])
	require.Equal(t, float32(3), ps.Values[1])
	require.Equal(t, float32(5), ps.Values[2])
	require.Equal(t, float32(5), ps.Values[3]) // y row
	require.Equal(t, float32(0), ps.Values[6]) // z row
}

func TestGrid2D(t *testing.T) {
	gr := &Grid2D{NX: 2, Dx: 1, Dy: 1}
	ps := gr.GeneratePositions(5)
	n := 5
	// cell 3 is (x=1, y=1)
	require.Equal(t, float32(1), ps.Values[3])
	require.Equal(t, float32(1), ps.Values[n+3])
	// cell 4 wraps to (x=0, y=2)
	require.Equal(t, float32(0), ps.Values[4])
	require.Equal(t, float32(2), ps.Values[n+4])
}

func TestGrid3D(t *testing.T) {
	gr := &Grid3D{}
	gr.Defaults()
	gr.NX, gr.NY = 2, 2
	ps := gr.GeneratePositions(8)
	n := 8
	// cell 7 is (1,1,1)
	require.Equal(t, float32(1), ps.Values[7])
	require.Equal(t, float32(1), ps.Values[n+7])
	require.Equal(t, float32(1), ps.Values[2*n+7])
}

func TestRandomBoxDeterminism(t *testing.T) {
	rb := &RandomBox{Seed: 11}
	rb.Defaults()
	p1 := rb.GeneratePositions(10)
	p2 := rb.GeneratePositions(10)
	require.Equal(t, p1.Values, p2.Values)
	for _, v := range p1.Values {
		require.GreaterOrEqual(t, v, float32(0))
		require.Less(t, v, float32(1))
	}
}

// Copyright (c) 2024, The Popnet Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package space provides spatial structure generators for populations.  A
Structure produces a 3 x N coordinate table for N cells; everything else
about spatial layout (distance metrics, boundary conditions, projections)
lives with the consumers of those points.
*/
package space

import (
	"github.com/chewxy/math32"
	"github.com/emer/etable/etensor"
	"github.com/goki/mat32"
	"golang.org/x/exp/rand"
)

// Structure generates positions for n cells as a [3, n] coordinate table,
// rows being the x, y, z coordinates.
type Structure interface {
	GeneratePositions(n int) *etensor.Float32
}

// newPosTable returns an empty [3, n] position table.
func newPosTable(n int) *etensor.Float32 {
	return etensor.NewFloat32([]int{3, n}, nil, []string{"XYZ", "N"})
}

// setPos writes one cell's coordinates into a [3, n] table.
func setPos(ps *etensor.Float32, n, i int, x, y, z float32) {
	ps.Values[0*n+i] = x
	ps.Values[1*n+i] = y
	ps.Values[2*n+i] = z
}

// Line places cells along the x axis with spacing Dx, starting at X0.
type Line struct {
	Dx float32 `desc:"spacing between cells"`
	X0 float32 `desc:"x coordinate of the first cell"`
	Y  float32 `desc:"y coordinate of all cells"`
	Z  float32 `desc:"z coordinate of all cells"`
}

func (ln *Line) Defaults() {
	ln.Dx = 1
}

func (ln *Line) GeneratePositions(n int) *etensor.Float32 {
	ps := newPosTable(n)
	for i := 0; i < n; i++ {
		setPos(ps, n, i, ln.X0+float32(i)*ln.Dx, ln.Y, ln.Z)
	}
	return ps
}

// Grid2D places cells on an NX-wide grid in the x-y plane, filling rows
// first.  The grid grows in y as needed to hold all cells.
type Grid2D struct {
	NX float32 `desc:"number of cells along x -- fractional values are truncated"`
	Dx float32 `desc:"spacing along x"`
	Dy float32 `desc:"spacing along y"`
	X0 float32 `desc:"x origin"`
	Y0 float32 `desc:"y origin"`
	Z  float32 `desc:"z coordinate of all cells"`
}

func (gr *Grid2D) Defaults() {
	gr.NX = 1
	gr.Dx = 1
	gr.Dy = 1
}

func (gr *Grid2D) GeneratePositions(n int) *etensor.Float32 {
	nx := int(math32.Floor(gr.NX))
	if nx < 1 {
		nx = 1
	}
	ps := newPosTable(n)
	for i := 0; i < n; i++ {
		x := i % nx
		y := i / nx
		setPos(ps, n, i, gr.X0+float32(x)*gr.Dx, gr.Y0+float32(y)*gr.Dy, gr.Z)
	}
	return ps
}

// Grid3D places cells on an NX x NY x depth grid, filling x first, then y,
// then z.
type Grid3D struct {
	NX int        `desc:"number of cells along x"`
	NY int        `desc:"number of cells along y"`
	Dp mat32.Vec3 `desc:"spacing along each axis"`
	Or mat32.Vec3 `desc:"origin"`
}

func (gr *Grid3D) Defaults() {
	gr.NX = 1
	gr.NY = 1
	gr.Dp = mat32.Vec3{X: 1, Y: 1, Z: 1}
}

func (gr *Grid3D) GeneratePositions(n int) *etensor.Float32 {
	nx, ny := gr.NX, gr.NY
	if nx < 1 {
		nx = 1
	}
	if ny < 1 {
		ny = 1
	}
	ps := newPosTable(n)
	for i := 0; i < n; i++ {
		x := i % nx
		y := (i / nx) % ny
		z := i / (nx * ny)
		setPos(ps, n, i,
			gr.Or.X+float32(x)*gr.Dp.X,
			gr.Or.Y+float32(y)*gr.Dp.Y,
			gr.Or.Z+float32(z)*gr.Dp.Z)
	}
	return ps
}

// RandomBox places cells uniformly at random inside an axis-aligned box.
// The draw stream is seeded, so every node generates identical positions.
type RandomBox struct {
	Min  mat32.Vec3 `desc:"minimum corner of the box"`
	Max  mat32.Vec3 `desc:"maximum corner of the box"`
	Seed uint64     `desc:"seed for the position stream"`
}

func (rb *RandomBox) Defaults() {
	rb.Max = mat32.Vec3{X: 1, Y: 1, Z: 1}
}

func (rb *RandomBox) GeneratePositions(n int) *etensor.Float32 {
	rng := rand.New(rand.NewSource(rb.Seed))
	ps := newPosTable(n)
	for i := 0; i < n; i++ {
		x := rb.Min.X + rng.Float32()*(rb.Max.X-rb.Min.X)
		y := rb.Min.Y + rng.Float32()*(rb.Max.Y-rb.Min.Y)
		z := rb.Min.Z + rng.Float32()*(rb.Max.Z-rb.Min.Z)
		setPos(ps, n, i, x, y, z)
	}
	return ps
}

// Copyright (c) 2024, The Popnet Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package pop implements the population data model: Population, the owning
container of a fixed, globally ordered set of cells of one type;
PopulationView, a non-owning alias into a parent selected by an index mask;
and Assembly, an ordered, de-duplicated union of populations and views of
potentially different cell types.

All parameter and initial-value access resolves through the view layer down
to the owning population, which evaluates lazy parameter arrays against its
node-local indices.  Cell storage is never copied: views and assembly
members borrow access to the parent's storage.  No locking is provided for
aliasing writers; callers sharing a parent through multiple views must
coordinate (single logical thread of control per compute node).
*/
package pop

import (
	"github.com/emer/etable/etensor"
	"github.com/nsim/popnet/cells"
	"github.com/nsim/popnet/lazy"
	"github.com/nsim/popnet/nodes"
	"github.com/nsim/popnet/record"
)

// Group is the capability surface shared by Population and PopulationView,
// and the member type of an Assembly.  See the concrete types for the
// semantics of each operation.
type Group interface {
	// Label returns the group's name.
	Label() string

	// Size returns the total cell count, across all nodes.
	Size() int

	// LocalSize returns the number of cells resident on this node.
	LocalSize() int

	// CellType returns the capability descriptor of the cells.
	CellType() cells.Type

	// Node returns the compute-node state the group runs on.
	Node() *nodes.State

	// AllCells returns the ordered cell identifiers, length Size.
	AllCells() []ID

	// LocalCells returns the identifiers of node-resident cells, in order.
	LocalCells() []ID

	// LocalMask returns the boolean residency mask, length Size.
	LocalMask() []bool

	// CellAt returns the cell at the given index.
	CellAt(i int) (ID, error)

	// ViewAt returns a view selecting the masked cells.
	ViewAt(msk Mask) (*View, error)

	// IDToIndex returns the index of the given cell within this group.
	IDToIndex(id ID) (int, error)

	// Get returns current values of the named parameters for local cells,
	// or for all cells when gather is set.  With simplify, uniform values
	// collapse to scalars.
	Get(names []string, gather, simplify bool) (map[string]lazy.Result, error)

	// Set assigns parameter values (scalars, sequences, random
	// distributions or index functions) for every cell in the group.
	Set(params map[string]*lazy.Array) error

	// Initialize assigns initial values of state variables, with the same
	// value-kind contract as Set.
	Initialize(values map[string]*lazy.Array) error

	// Record starts recording the named state variables for the group's
	// cells at the given sampling interval (ms).
	Record(variables []string, interval float64, location string) error

	// Recorder returns the recorder instance, shared between a population
	// and all of its views.
	Recorder() *record.Recorder

	// RecordFilter returns the root-population cell indices this group
	// restricts recording to, or nil for the whole population.
	RecordFilter() []int

	// GetData returns the recorded data for the named variables
	// (nil = all), deleting it from the recorder if clear is set.
	GetData(variables []string, clear bool) (*record.Block, error)

	// SpikeCounts returns the number of recorded spikes per cell, keyed
	// by global identifier.
	SpikeCounts(gather bool) (map[int]int, error)

	// Positions returns the 3 x Size coordinate table of the group's
	// cells.
	Positions() *etensor.Float32

	// Root returns the owning population at the root of the view chain.
	Root() *Population

	// RootIndices returns, for each cell of the group in order, its index
	// in the root population.
	RootIndices() []int

	// ConductanceBased reports whether the post-synaptic response is a
	// conductance change (vs a current change).
	ConductanceBased() bool

	// Injectable reports whether current can be injected into the cells.
	Injectable() bool

	// ReceptorTypes returns the post-synaptic receptor type names.
	ReceptorTypes() []string
}

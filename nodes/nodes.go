// Copyright (c) 2024, The Popnet Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package nodes models the compute-node side of a distributed, lock-step
(SPMD) run: which rank this process is, how many ranks participate, which
cells of a population are resident here, and the gather boundary through
which values held on all ranks are collected.

The physical transport behind a gather belongs to the external simulation
engine; this package defines the Exchanger interface at that boundary and
provides a single-process implementation plus an in-process simulated group
used to test node-count-independence without MPI.
*/
package nodes

import (
	"errors"
	"fmt"
	"sync"

	"github.com/emer/empi/mpi"
)

// ErrGather is wrapped by all cross-node collection errors.
var ErrGather = errors.New("gather failed")

// Exchanger collects (global index, value) contributions from every rank
// into one full-length, index-ordered value slice.  Every rank must call
// GatherValues at the same logical program point with the same size;
// divergent invocation across ranks is undefined behavior.
type Exchanger interface {
	// GatherValues contributes this rank's local indices and values for a
	// quantity of global length size, and returns the merged full-length
	// slice.  All ranks receive the merged result.
	GatherValues(localIdx []int, localVals []float64, size int) ([]float64, error)
}

// State describes the local compute node: its rank, the total number of
// ranks, and the exchanger used for cross-node collection.
type State struct {
	Rank   int       `desc:"0-based rank of this node"`
	NProcs int       `desc:"total number of cooperating nodes"`
	Exch   Exchanger `desc:"cross-node gather implementation"`
}

// Solo returns the state for a single-process run.
func Solo() *State {
	return &State{Rank: 0, NProcs: 1, Exch: &SoloExchange{}}
}

// FromMPI returns a state initialized from the MPI world rank and size.
// The exchanger defaults to the single-process one; a run with more than
// one rank must install the engine's exchanger before using gather.
func FromMPI() *State {
	return &State{Rank: mpi.WorldRank(), NProcs: mpi.WorldSize(), Exch: &SoloExchange{}}
}

// Coordinator is true on the node designated to perform whole-run side
// effects such as writing files.
func (st *State) Coordinator() bool { return st.Rank == 0 }

// LocalMask returns the boolean residency mask for n cells under the
// round-robin locality policy: cell i lives on rank i mod NProcs.  Masks
// from all ranks are mutually exclusive and globally covering.
func (st *State) LocalMask(n int) []bool {
	mask := make([]bool, n)
	for i := range mask {
		mask[i] = i%st.NProcs == st.Rank
	}
	return mask
}

// SoloExchange is the single-process Exchanger: the local contribution is
// the whole quantity.
type SoloExchange struct{}

func (se *SoloExchange) GatherValues(localIdx []int, localVals []float64, size int) ([]float64, error) {
	if len(localIdx) != len(localVals) {
		return nil, fmt.Errorf("%w: %d indices, %d values", ErrGather, len(localIdx), len(localVals))
	}
	out := make([]float64, size)
	for i, gi := range localIdx {
		if gi < 0 || gi >= size {
			return nil, fmt.Errorf("%w: index %d not in [0,%d)", ErrGather, gi, size)
		}
		out[gi] = localVals[i]
	}
	return out, nil
}

// SimGroup simulates a group of ranks inside one process, for testing
// lock-step collection.  Each simulated rank runs in its own goroutine;
// GatherValues blocks until every rank has contributed, then all return the
// merged slice, mirroring a synchronous MPI allgather.
type SimGroup struct {
	N int `desc:"number of simulated ranks"`

	mu  sync.Mutex
	cur *gatherRound
}

// gatherRound is the state of one collective exchange.  Ranks accumulate
// into it until all have arrived, at which point it is sealed and every
// waiter reads from it.  Each round is a fresh struct: a rank still reading
// a finished round can never observe the buffer of the round that fast
// ranks have already started.
type gatherRound struct {
	arrived int
	size    int
	merged  []float64
	err     error
	done    chan struct{}
}

// NewSimGroup returns a simulated group of n ranks and the per-rank States
// wired to it.
func NewSimGroup(n int) (*SimGroup, []*State) {
	sg := &SimGroup{N: n}
	sts := make([]*State, n)
	for r := 0; r < n; r++ {
		sts[r] = &State{Rank: r, NProcs: n, Exch: sg}
	}
	return sg, sts
}

func (sg *SimGroup) GatherValues(localIdx []int, localVals []float64, size int) ([]float64, error) {
	if len(localIdx) != len(localVals) {
		return nil, fmt.Errorf("%w: %d indices, %d values", ErrGather, len(localIdx), len(localVals))
	}
	sg.mu.Lock()
	if sg.cur == nil {
		sg.cur = &gatherRound{size: size, merged: make([]float64, size), done: make(chan struct{})}
	}
	rd := sg.cur
	if size != rd.size {
		rd.err = fmt.Errorf("%w: divergent sizes across ranks: %d vs %d", ErrGather, size, rd.size)
	}
	for i, gi := range localIdx {
		if gi < 0 || gi >= rd.size {
			rd.err = fmt.Errorf("%w: index %d not in [0,%d)", ErrGather, gi, rd.size)
			continue
		}
		rd.merged[gi] = localVals[i]
	}
	rd.arrived++
	last := rd.arrived == sg.N
	if last {
		// seal this round; the next gather starts a fresh one
		sg.cur = nil
	}
	sg.mu.Unlock()
	if last {
		close(rd.done)
	} else {
		<-rd.done
	}
	return rd.merged, rd.err
}

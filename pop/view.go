// Copyright (c) 2024, The Popnet Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pop

import (
	"fmt"
	"math"
	"sort"

	"github.com/emer/etable/etensor"
	"github.com/goki/mat32"
	"github.com/nsim/popnet/cells"
	"github.com/nsim/popnet/lazy"
	"github.com/nsim/popnet/nodes"
	"github.com/nsim/popnet/record"
	"golang.org/x/exp/rand"
)

// View is a non-owning alias for a subset of a parent group's cells,
// selected by an index mask.  Views copy no cell storage: all parameter,
// initial-value, position and recording access resolves through the view
// chain down to the owning root population.  Views of views are ordinary
// views with composed masks.
type View struct {
	Nm  string `desc:"name of the view -- auto-generated when empty"`
	Par Group  `desc:"immediate parent: a population or another view"`
	Msk Mask   `desc:"normalized parent-relative selection"`

	rootIdxs []int // ascending root-population index per view cell
}

// NewView creates a view of the parent selecting the masked cells.  The
// mask is normalized first: boolean masks become index lists, unsorted or
// duplicated index lists are corrected with a logged warning, and
// out-of-range indices are errors.  An empty label is auto-generated.
func NewView(parent Group, msk Mask, label string) (*View, error) {
	nm, err := msk.Normalize(parent.Size())
	if err != nil {
		return nil, fmt.Errorf("view of %q: %w", parent.Label(), err)
	}
	pr := parent.RootIndices()
	pidxs := nm.Indices()
	ridxs := make([]int, len(pidxs))
	for i, pi := range pidxs {
		ridxs[i] = pr[pi]
	}
	vw := &View{Nm: label, Par: parent, Msk: nm, rootIdxs: ridxs}
	if vw.Nm == "" {
		vw.Nm = fmt.Sprintf("view of %q with size %d", parent.Label(), len(ridxs))
	}
	return vw, nil
}

func (vw *View) Label() string          { return vw.Nm }
func (vw *View) Size() int              { return len(vw.rootIdxs) }
func (vw *View) CellType() cells.Type   { return vw.Par.CellType() }
func (vw *View) Node() *nodes.State     { return vw.Par.Node() }
func (vw *View) Root() *Population      { return vw.Par.Root() }
func (vw *View) ConductanceBased() bool { return vw.Par.ConductanceBased() }
func (vw *View) Injectable() bool       { return vw.Par.Injectable() }
func (vw *View) ReceptorTypes() []string { return vw.Par.ReceptorTypes() }

// Parent returns the immediate parent group.
func (vw *View) Parent() Group { return vw.Par }

// RootIndices returns, per view cell in order, its index in the root
// population.  The returned slice is shared; callers must not mutate it.
func (vw *View) RootIndices() []int { return vw.rootIdxs }

// IndexInParent returns the parent-relative index of view cell i.
func (vw *View) IndexInParent(i int) int { return vw.Msk.Indices()[i] }

// IndexFromParentIndex returns the view-relative index of the parent cell
// at index pi, or ErrNotPresent when the view does not select it.
func (vw *View) IndexFromParentIndex(pi int) (int, error) {
	return vw.Msk.IndexOf(pi)
}

// LocalSize returns the number of view cells resident on this node.
func (vw *View) LocalSize() int {
	n := 0
	rm := vw.Root().localMask
	for _, gi := range vw.rootIdxs {
		if rm[gi] {
			n++
		}
	}
	return n
}

// LocalMask returns the residency mask of the view's cells, in view order.
func (vw *View) LocalMask() []bool {
	rm := vw.Root().localMask
	msk := make([]bool, len(vw.rootIdxs))
	for i, gi := range vw.rootIdxs {
		msk[i] = rm[gi]
	}
	return msk
}

// AllCells returns the ordered cell identifiers of the view.
func (vw *View) AllCells() []ID {
	root := vw.Root()
	ids := make([]ID, len(vw.rootIdxs))
	for i, gi := range vw.rootIdxs {
		ids[i] = ID{Pop: root, Idx: gi}
	}
	return ids
}

// LocalCells returns the identifiers of node-resident view cells.
func (vw *View) LocalCells() []ID {
	root := vw.Root()
	rm := root.localMask
	var ids []ID
	for _, gi := range vw.rootIdxs {
		if rm[gi] {
			ids = append(ids, ID{Pop: root, Idx: gi})
		}
	}
	return ids
}

// CellAt returns the view cell at index i.
func (vw *View) CellAt(i int) (ID, error) {
	if i < 0 || i >= len(vw.rootIdxs) {
		return ID{}, fmt.Errorf("%w: index %d not in [0,%d)", ErrIDRange, i, len(vw.rootIdxs))
	}
	return ID{Pop: vw.Root(), Idx: vw.rootIdxs[i]}, nil
}

// ViewAt returns a sub-view selecting the masked cells of this view.
func (vw *View) ViewAt(msk Mask) (*View, error) {
	return NewView(vw, msk, "")
}

// IDToIndex returns the index of the given cell within the view, or
// ErrNotPresent when the view does not contain it.  Binary search over
// the ascending root index list.
func (vw *View) IDToIndex(id ID) (int, error) {
	if id.Pop != vw.Root() {
		return 0, fmt.Errorf("%w: cell %s does not belong to the root of %s",
			ErrNotPresent, id, vw.Nm)
	}
	k := sort.SearchInts(vw.rootIdxs, id.Idx)
	if k == len(vw.rootIdxs) || vw.rootIdxs[k] != id.Idx {
		return 0, fmt.Errorf("%w: cell %s not in view %s", ErrNotPresent, id, vw.Nm)
	}
	return k, nil
}

// SameCells reports whether other selects exactly the same cells of the
// same root population, in the same order.
func (vw *View) SameCells(other Group) bool {
	if other.Root() != vw.Root() || other.Size() != vw.Size() {
		return false
	}
	oi := other.RootIndices()
	for i, gi := range vw.rootIdxs {
		if oi[i] != gi {
			return false
		}
	}
	return true
}

//////////////////////////////////////////////////////////////////////////////////////
//  Parameters, initial values

// Get returns current values of the named parameters for the view's local
// cells, or all view cells when gather is set.  Values come from the root
// population's storage; the view copies nothing.
func (vw *View) Get(names []string, gather, simplify bool) (map[string]lazy.Result, error) {
	root := vw.Root()
	out := make(map[string]lazy.Result, len(names))
	for _, name := range names {
		def, err := root.Ct.Schema().Def(name)
		if err != nil {
			return nil, fmt.Errorf("cell type %s: %w", root.Ct.Name(), err)
		}
		sv := root.store[def.NativeName()]
		var vals []float64
		var vpos []int // view-relative positions of local cells
		for vi, gi := range vw.rootIdxs {
			lp := root.localPos[gi]
			if lp < 0 {
				continue
			}
			if sv == nil {
				vals = append(vals, def.Default)
			} else {
				vals = append(vals, def.FromNative(sv[lp]))
			}
			vpos = append(vpos, vi)
		}
		if gather && root.NodeSt.NProcs > 1 {
			vals, err = root.NodeSt.Exch.GatherValues(vpos, vals, len(vw.rootIdxs))
			if err != nil {
				return nil, err
			}
		}
		if simplify {
			out[name] = lazy.Simplify(vals)
		} else {
			out[name] = lazy.Result{Values: vals}
		}
	}
	return out, nil
}

// Set assigns parameters for every cell in the view, writing through to
// the root population's storage.  Value shapes follow the view size, not
// the root size.
func (vw *View) Set(params map[string]*lazy.Array) error {
	return vw.Root().setAt(vw.rootIdxs, params)
}

// Initialize assigns initial values of state variables for the view's
// cells, writing through to the root population's per-cell table.
func (vw *View) Initialize(values map[string]*lazy.Array) error {
	root := vw.Root()
	for _, variable := range sortedKeys(values) {
		if err := root.setInitialAt(variable, vw.rootIdxs, values[variable]); err != nil {
			return err
		}
	}
	return nil
}

// InitialValues always fails: a view cannot expose a coherent lazy table
// over a subset of its root's initial values.  Read per cell instead, or
// use the root population.
func (vw *View) InitialValues() (map[string]*lazy.Array, error) {
	return nil, fmt.Errorf("%w: view %s", ErrViewInitialValues, vw.Nm)
}

//////////////////////////////////////////////////////////////////////////////////////
//  Positions, sampling

// Positions returns a 3 x Size coordinate table for the view's cells,
// copied from the root population's table in view order.
func (vw *View) Positions() *etensor.Float32 {
	root := vw.Root()
	rp := root.Positions()
	rn := root.Sz
	n := len(vw.rootIdxs)
	ps := etensor.NewFloat32([]int{3, n}, nil, []string{"XYZ", "N"})
	for i, gi := range vw.rootIdxs {
		ps.Values[i] = rp.Values[gi]
		ps.Values[n+i] = rp.Values[rn+gi]
		ps.Values[2*n+i] = rp.Values[2*rn+gi]
	}
	return ps
}

// Nearest returns the view cell whose position minimizes squared
// Euclidean distance to the query point.  Ties break to the lowest view
// index.
func (vw *View) Nearest(q mat32.Vec3) (ID, error) {
	if len(vw.rootIdxs) == 0 {
		return ID{}, fmt.Errorf("%w: view %s is empty", ErrNotPresent, vw.Nm)
	}
	root := vw.Root()
	best := math.Inf(1)
	bi := 0
	for i, gi := range vw.rootIdxs {
		p := root.CellPosition(gi)
		dx := float64(p.X - q.X)
		dy := float64(p.Y - q.Y)
		dz := float64(p.Z - q.Z)
		d := dx*dx + dy*dy + dz*dz
		if d < best {
			best = d
			bi = i
		}
	}
	return ID{Pop: root, Idx: vw.rootIdxs[bi]}, nil
}

// Sample returns a sub-view over n cells drawn without replacement.
func (vw *View) Sample(n int, rng *rand.Rand) (*View, error) {
	if n < 0 || n > len(vw.rootIdxs) {
		return nil, fmt.Errorf("%w: cannot sample %d of %d cells", ErrIDRange, n, len(vw.rootIdxs))
	}
	idxs := rng.Perm(len(vw.rootIdxs))[:n]
	return NewView(vw, IndexMask(idxs...), "")
}

// SavePositions writes (root index, x, y, z) rows for the view's cells.
// Only the coordinating node writes.
func (vw *View) SavePositions(filename string) error {
	if !vw.Node().Coordinator() {
		return nil
	}
	return savePositions(filename, "view", vw.Nm, vw.rootIdxs, vw.Positions())
}

//////////////////////////////////////////////////////////////////////////////////////
//  Recording

// Record starts recording the named state variables for the view's cells,
// on the recorder shared with the root population.
func (vw *View) Record(variables []string, interval float64, location string) error {
	root := vw.Root()
	for _, v := range variables {
		if !root.Ct.CanRecord(v) {
			return fmt.Errorf("cell type %s: %w: cannot record %q (recordable: %v)",
				root.Ct.Name(), cells.ErrNoSuchParameter, v, root.Ct.Recordable())
		}
	}
	root.rec.Record(variables, vw.rootIdxs, interval, location)
	return nil
}

// Recorder returns the root population's recorder.
func (vw *View) Recorder() *record.Recorder { return vw.Root().rec }

// RecordFilter returns the root indices recording is restricted to.
func (vw *View) RecordFilter() []int { return vw.rootIdxs }

// GetData returns the recorded data for the view's cells.
func (vw *View) GetData(variables []string, clear bool) (*record.Block, error) {
	return vw.Root().rec.Get(variables, vw.rootIdxs, clear)
}

// WriteData writes the view's recorded data to text files.
func (vw *View) WriteData(filename string, variables []string, gather, clear bool) error {
	return vw.Root().rec.Write(filename, variables, gather, vw.rootIdxs, clear)
}

// SpikeCounts returns recorded spike counts for the view's cells, keyed by
// global identifier.
func (vw *View) SpikeCounts(gather bool) (map[int]int, error) {
	root := vw.Root()
	cts, err := root.rec.Count(record.Spikes, gather, vw.rootIdxs)
	if err != nil {
		return nil, err
	}
	out := make(map[int]int, len(cts))
	for ci, n := range cts {
		out[root.FirstID+ci] = n
	}
	return out, nil
}

// MeanSpikeCount returns the mean number of spikes per view cell.  With
// gather, non-coordinating nodes return NaN.
func (vw *View) MeanSpikeCount(gather bool) (float64, error) {
	cts, err := vw.SpikeCounts(gather)
	if err != nil {
		return 0, err
	}
	if gather && !vw.Node().Coordinator() {
		return math.NaN(), nil
	}
	if len(cts) == 0 {
		return 0, nil
	}
	total := 0
	for _, n := range cts {
		total += n
	}
	return float64(total) / float64(len(cts)), nil
}

// Inject connects a current source to the view's local cells.
func (vw *View) Inject(cs CurrentSource) error {
	if !vw.Injectable() {
		return fmt.Errorf("cell type %s: cannot inject current into a spike source",
			vw.CellType().Name())
	}
	return cs.InjectInto(vw.LocalCells())
}

func (vw *View) String() string {
	return fmt.Sprintf("PopulationView(%q, size=%d)", vw.Nm, len(vw.rootIdxs))
}

// Describe returns a human-readable description of the view.
func (vw *View) Describe() string {
	return fmt.Sprintf("%s: %d of %d cells of %s, %d local",
		vw.Nm, len(vw.rootIdxs), vw.Root().Sz, vw.Root().Nm, vw.LocalSize())
}

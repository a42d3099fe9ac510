// Copyright (c) 2024, The Popnet Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pop

import (
	"fmt"
	"log"
	"math"
	"sort"

	"github.com/chewxy/math32"
	"github.com/emer/etable/etensor"
	"github.com/goki/mat32"
	"github.com/nsim/popnet/cells"
	"github.com/nsim/popnet/lazy"
	"github.com/nsim/popnet/nodes"
	"github.com/nsim/popnet/record"
	"github.com/nsim/popnet/space"
	"golang.org/x/exp/rand"
)

// Config holds the optional arguments for population construction.
// All fields may be left zero.
type Config struct {
	Label         string                 `desc:"name of the population -- auto-generated from the registry when empty"`
	Structure     space.Structure        `desc:"spatial structure generating cell positions -- defaults to a unit-spaced line"`
	InitialValues map[string]*lazy.Array `desc:"initial values for state variables, overriding the cell type defaults"`
	Node          *nodes.State           `desc:"compute node state -- defaults to a single-process node"`
	Registry      *Registry              `desc:"identifier/label registry -- defaults to StdRegistry"`
}

// Population is the owning container for a fixed-size, globally ordered set
// of cells of one type.  It holds the cells' node-locality information,
// spatial positions, initial state values, and the node-local native
// parameter storage that backs all parameter access from views and
// assemblies built on top of it.
type Population struct {
	Nm      string            `desc:"name of the population"`
	Ct      cells.Type        `desc:"capability descriptor for the cells"`
	Sz      int               `desc:"total number of cells, fixed at construction"`
	FirstID int               `desc:"global identifier of the first cell"`
	LastID  int               `desc:"global identifier of the last cell"`
	Struc   space.Structure   `desc:"spatial structure -- nil after positions are set explicitly"`
	NodeSt  *nodes.State      `desc:"compute node this population is evaluated on"`
	Annots  map[string]string `desc:"free-form annotations"`

	pos       *etensor.Float32       // 3 x Sz, generated from Struc on first access
	localMask []bool                 // residency per cell
	localIdx  []int                  // global indices of local cells, ascending
	localPos  []int                  // global index -> position in localIdx, -1 if non-local
	initVals  map[string]*lazy.Array // state variable -> full-size lazy array
	store     map[string][]float64   // native parameter name -> per-local-cell values
	rec       *record.Recorder
}

// New creates a population of size cells of the given type.  cfg may be
// nil for all defaults: single-process node, unit-spaced line structure,
// auto-generated label from StdRegistry, and the cell type's default
// initial values.  A zero size is well-formed (an empty population).
func New(size int, ct cells.Type, cfg *Config) (*Population, error) {
	if size < 0 {
		return nil, fmt.Errorf("%w: population size %d must be >= 0", ErrIDRange, size)
	}
	if cfg == nil {
		cfg = &Config{}
	}
	reg := cfg.Registry
	if reg == nil {
		reg = StdRegistry
	}
	node := cfg.Node
	if node == nil {
		node = nodes.Solo()
	}
	st := cfg.Structure
	if st == nil {
		ln := &space.Line{}
		ln.Defaults()
		st = ln
	}
	lbl := cfg.Label
	if lbl == "" {
		lbl = reg.PopLabel()
	}
	first, last := reg.AllocIDs(size)
	pp := &Population{
		Nm:      lbl,
		Ct:      ct,
		Sz:      size,
		FirstID: first,
		LastID:  last,
		Struc:   st,
		NodeSt:  node,
		Annots:  make(map[string]string),
	}
	pp.localMask = node.LocalMask(size)
	pp.localPos = make([]int, size)
	for i, lc := range pp.localMask {
		if lc {
			pp.localPos[i] = len(pp.localIdx)
			pp.localIdx = append(pp.localIdx, i)
		} else {
			pp.localPos[i] = -1
		}
	}
	pp.initVals = make(map[string]*lazy.Array)
	pp.store = make(map[string][]float64)
	pp.rec = record.NewRecorder(lbl, size, node)

	init := make(map[string]*lazy.Array)
	for v, d := range ct.DefaultInitialValues() {
		init[v] = lazy.Scalar(d)
	}
	for v, ar := range cfg.InitialValues {
		init[v] = ar
	}
	if err := pp.Initialize(init); err != nil {
		return nil, err
	}
	return pp, nil
}

func (pp *Population) Label() string         { return pp.Nm }
func (pp *Population) Size() int             { return pp.Sz }
func (pp *Population) LocalSize() int        { return len(pp.localIdx) }
func (pp *Population) CellType() cells.Type  { return pp.Ct }
func (pp *Population) Node() *nodes.State    { return pp.NodeSt }
func (pp *Population) ConductanceBased() bool { return pp.Ct.ConductanceBased() }
func (pp *Population) Injectable() bool       { return pp.Ct.Injectable() }
func (pp *Population) ReceptorTypes() []string { return pp.Ct.ReceptorTypes() }

// Root returns the population itself: it is the root of any view chain.
func (pp *Population) Root() *Population { return pp }

// RootIndices returns the identity index list 0..Size-1.
func (pp *Population) RootIndices() []int {
	idxs := make([]int, pp.Sz)
	for i := range idxs {
		idxs[i] = i
	}
	return idxs
}

// LocalMask returns the residency mask.  The returned slice is shared;
// callers must not mutate it.
func (pp *Population) LocalMask() []bool { return pp.localMask }

// AllCells returns the ordered identifiers of all cells.
func (pp *Population) AllCells() []ID {
	ids := make([]ID, pp.Sz)
	for i := range ids {
		ids[i] = ID{Pop: pp, Idx: i}
	}
	return ids
}

// LocalCells returns the identifiers of node-resident cells, in order.
func (pp *Population) LocalCells() []ID {
	ids := make([]ID, len(pp.localIdx))
	for i, gi := range pp.localIdx {
		ids[i] = ID{Pop: pp, Idx: gi}
	}
	return ids
}

// CellAt returns the cell at index i.
func (pp *Population) CellAt(i int) (ID, error) {
	if i < 0 || i >= pp.Sz {
		return ID{}, fmt.Errorf("%w: index %d not in [0,%d)", ErrIDRange, i, pp.Sz)
	}
	return ID{Pop: pp, Idx: i}, nil
}

// ViewAt returns a view of the population selecting the masked cells.
func (pp *Population) ViewAt(msk Mask) (*View, error) {
	return NewView(pp, msk, "")
}

// IDToIndex returns the index of the given cell in the population.
// O(1) from the contiguity invariant.
func (pp *Population) IDToIndex(id ID) (int, error) {
	if id.Pop != pp {
		return 0, fmt.Errorf("%w: cell %s does not belong to %s", ErrNotPresent, id, pp.Nm)
	}
	if id.Idx < 0 || id.Idx >= pp.Sz {
		return 0, fmt.Errorf("%w: index %d not in [0,%d)", ErrIDRange, id.Idx, pp.Sz)
	}
	return id.Idx, nil
}

// GIDToIndex returns the index of the cell with the given global
// identifier.
func (pp *Population) GIDToIndex(gid int) (int, error) {
	if gid < pp.FirstID || gid > pp.LastID {
		return 0, fmt.Errorf("%w: id should be in the range [%d,%d], actually %d",
			ErrIDRange, pp.FirstID, pp.LastID, gid)
	}
	return gid - pp.FirstID, nil
}

// IDToLocalIndex returns the index of the cell counting only cells
// resident on this node.  On more than one node this is a linear scan
// over the local cells -- a performance caveat, not a correctness one.
func (pp *Population) IDToLocalIndex(id ID) (int, error) {
	idx, err := pp.IDToIndex(id)
	if err != nil {
		return 0, err
	}
	if !pp.localMask[idx] {
		return 0, fmt.Errorf("%w: cell %s", ErrNotLocal, id)
	}
	if pp.NodeSt.NProcs == 1 {
		return idx, nil
	}
	for lp, gi := range pp.localIdx {
		if gi == idx {
			return lp, nil
		}
	}
	return 0, fmt.Errorf("%w: cell %s", ErrNotLocal, id)
}

//////////////////////////////////////////////////////////////////////////////////////
//  Parameters

// localValues returns the current values of one parameter for the local
// cells, in user units and local order.
func (pp *Population) localValues(def *cells.ParamDef) []float64 {
	vals := make([]float64, len(pp.localIdx))
	sv := pp.store[def.NativeName()]
	for i := range vals {
		if sv == nil {
			vals[i] = def.Default
		} else {
			vals[i] = def.FromNative(sv[i])
		}
	}
	return vals
}

// ensureNative makes sure native storage exists for the given parameter,
// filling it with the translated default.
func (pp *Population) ensureNative(def *cells.ParamDef) []float64 {
	nat := def.NativeName()
	sv := pp.store[nat]
	if sv == nil {
		sv = make([]float64, len(pp.localIdx))
		nd := def.ToNative(def.Default)
		for i := range sv {
			sv[i] = nd
		}
		pp.store[nat] = sv
	}
	return sv
}

// Get returns the current values of the named parameters for local cells,
// or for all cells when gather is set (a synchronous cross-node collection
// point: every node must reach it with the same arguments).  With
// simplify, a parameter uniform across all returned cells collapses to a
// scalar.  Unknown names are schema errors.
func (pp *Population) Get(names []string, gather, simplify bool) (map[string]lazy.Result, error) {
	out := make(map[string]lazy.Result, len(names))
	for _, name := range names {
		def, err := pp.Ct.Schema().Def(name)
		if err != nil {
			return nil, fmt.Errorf("cell type %s: %w", pp.Ct.Name(), err)
		}
		vals := pp.localValues(def)
		if gather && pp.NodeSt.NProcs > 1 {
			vals, err = pp.NodeSt.Exch.GatherValues(pp.localIdx, vals, pp.Sz)
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

// Set assigns one or more parameters for every cell in the population.
// Values may be scalars, explicit sequences of length Size, seeded random
// distributions, or index functions.  The full parameter space is shaped
// to the population size and translated to the native representation, and
// only the local subset is committed to storage.  A population with no
// local cells is a no-op.
func (pp *Population) Set(params map[string]*lazy.Array) error {
	if pp.LocalSize() == 0 {
		return nil
	}
	ps := lazy.NewParamSpace(pp.Ct.Schema(), pp.Ct.Name(), pp.Sz)
	for _, name := range sortedKeys(params) {
		if err := ps.Set(name, params[name]); err != nil {
			return err
		}
	}
	nps, err := ps.ToNative()
	if err != nil {
		return err
	}
	for _, nat := range nps.Names() {
		ar, err := nps.Get(nat)
		if err != nil {
			return err
		}
		vals, err := ar.EvalMasked(pp.localMask)
		if err != nil {
			return err
		}
		pp.store[nat] = vals
	}
	return nil
}

// setAt assigns parameters for the cells at the given root indices (used
// by views).  The parameter space is shaped to len(globalIdxs); values for
// non-local cells are evaluated (preserving the draw order) but discarded.
func (pp *Population) setAt(globalIdxs []int, params map[string]*lazy.Array) error {
	n := len(globalIdxs)
	ps := lazy.NewParamSpace(pp.Ct.Schema(), pp.Ct.Name(), n)
	for _, name := range sortedKeys(params) {
		if err := ps.Set(name, params[name]); err != nil {
			return err
		}
	}
	nps, err := ps.ToNative()
	if err != nil {
		return err
	}
	for _, nat := range nps.Names() {
		ar, err := nps.Get(nat)
		if err != nil {
			return err
		}
		vals, err := ar.EvalAll()
		if err != nil {
			return err
		}
		def, err := pp.Ct.Schema().DefByNative(nat)
		if err != nil {
			return err
		}
		sv := pp.ensureNative(def)
		for j, gi := range globalIdxs {
			lp := pp.localPos[gi]
			if lp < 0 {
				continue
			}
			sv[lp] = vals[j]
		}
	}
	return nil
}

// cellParameter returns one local cell's parameter value in user units.
func (pp *Population) cellParameter(name string, idx int) (float64, error) {
	def, err := pp.Ct.Schema().Def(name)
	if err != nil {
		return 0, fmt.Errorf("cell type %s: %w", pp.Ct.Name(), err)
	}
	lp := pp.localPos[idx]
	if lp < 0 {
		return 0, fmt.Errorf("%w: cell index %d", ErrNotLocal, idx)
	}
	sv := pp.store[def.NativeName()]
	if sv == nil {
		return def.Default, nil
	}
	return def.FromNative(sv[lp]), nil
}

// setCellParameter sets one local cell's parameter value.
func (pp *Population) setCellParameter(name string, idx int, val float64) error {
	def, err := pp.Ct.Schema().Def(name)
	if err != nil {
		return fmt.Errorf("cell type %s: %w", pp.Ct.Name(), err)
	}
	lp := pp.localPos[idx]
	if lp < 0 {
		return fmt.Errorf("%w: cell index %d", ErrNotLocal, idx)
	}
	sv := pp.ensureNative(def)
	sv[lp] = def.ToNative(val)
	return nil
}

//////////////////////////////////////////////////////////////////////////////////////
//  Initial values

// hasStateVar returns whether the cell type defines the named state
// variable.
func (pp *Population) hasStateVar(variable string) bool {
	_, ok := pp.Ct.DefaultInitialValues()[variable]
	return ok
}

// Initialize sets initial values of state variables, with the same value
// kinds as Set: scalars, sequences, random distributions or index
// functions.  Each variable is stored as a full-size lazy array, read
// lazily on demand.
func (pp *Population) Initialize(values map[string]*lazy.Array) error {
	for _, variable := range sortedKeys(values) {
		if !pp.hasStateVar(variable) {
			return fmt.Errorf("cell type %s: %w: state variable %q",
				pp.Ct.Name(), cells.ErrNoSuchParameter, variable)
		}
		ar := values[variable]
		if err := ar.SetShape(pp.Sz); err != nil {
			return fmt.Errorf("state variable %q: %w", variable, err)
		}
		pp.initVals[variable] = ar
	}
	return nil
}

// InitialValues returns the state-variable table, keyed by variable name.
func (pp *Population) InitialValues() map[string]*lazy.Array { return pp.initVals }

// cellInitialValue returns one cell's initial value for a state variable.
// An uninitialized variable reads as 0 with a logged warning.
func (pp *Population) cellInitialValue(variable string, idx int) (float64, error) {
	ar, ok := pp.initVals[variable]
	if !ok {
		log.Printf("pop: %s: state variable %q is not in initial values, returning 0.0\n", pp.Nm, variable)
		return 0, nil
	}
	return ar.Value(idx)
}

// setCellInitialValue sets one cell's initial value for a state variable.
func (pp *Population) setCellInitialValue(variable string, idx int, val float64) error {
	if !pp.hasStateVar(variable) {
		return fmt.Errorf("cell type %s: %w: state variable %q",
			pp.Ct.Name(), cells.ErrNoSuchParameter, variable)
	}
	ar, ok := pp.initVals[variable]
	if !ok {
		ar = lazy.Scalar(pp.Ct.DefaultInitialValues()[variable])
		if err := ar.SetShape(pp.Sz); err != nil {
			return err
		}
		pp.initVals[variable] = ar
	}
	return ar.SetValue(idx, val)
}

// setInitialAt sets initial values for the cells at the given root
// indices (used by views).
func (pp *Population) setInitialAt(variable string, globalIdxs []int, ar *lazy.Array) error {
	if !pp.hasStateVar(variable) {
		return fmt.Errorf("cell type %s: %w: state variable %q",
			pp.Ct.Name(), cells.ErrNoSuchParameter, variable)
	}
	if err := ar.SetShape(len(globalIdxs)); err != nil {
		return fmt.Errorf("state variable %q: %w", variable, err)
	}
	vals, err := ar.EvalAll()
	if err != nil {
		return err
	}
	base, ok := pp.initVals[variable]
	if !ok {
		base = lazy.Scalar(pp.Ct.DefaultInitialValues()[variable])
		if err := base.SetShape(pp.Sz); err != nil {
			return err
		}
		pp.initVals[variable] = base
	}
	for j, gi := range globalIdxs {
		if err := base.SetValue(gi, vals[j]); err != nil {
			return err
		}
	}
	return nil
}

//////////////////////////////////////////////////////////////////////////////////////
//  Positions

// Positions returns the 3 x Size coordinate table, generating it from the
// structure on first access and caching it.
func (pp *Population) Positions() *etensor.Float32 {
	if pp.pos == nil {
		st := pp.Struc
		if st == nil {
			ln := &space.Line{}
			ln.Defaults()
			st = ln
		}
		pp.pos = st.GeneratePositions(pp.Sz)
	}
	return pp.pos
}

// SetPositions replaces the coordinate table with a copy of ps, which must
// have shape [3, Size].  Explicitly setting positions invalidates the
// structure.
func (pp *Population) SetPositions(ps *etensor.Float32) error {
	if ps.Dim(0) != 3 || ps.Dim(1) != pp.Sz {
		return fmt.Errorf("positions shape [%d,%d] != [3,%d]", ps.Dim(0), ps.Dim(1), pp.Sz)
	}
	cp := etensor.NewFloat32([]int{3, pp.Sz}, nil, []string{"XYZ", "N"})
	copy(cp.Values, ps.Values)
	pp.pos = cp
	pp.Struc = nil
	return nil
}

// SetStructure replaces the spatial structure, invalidating any previously
// generated positions.
func (pp *Population) SetStructure(st space.Structure) {
	pp.Struc = st
	pp.pos = nil
}

// CellPosition returns the position of the cell at index i.
func (pp *Population) CellPosition(i int) mat32.Vec3 {
	ps := pp.Positions()
	n := pp.Sz
	return mat32.Vec3{X: ps.Values[i], Y: ps.Values[n+i], Z: ps.Values[2*n+i]}
}

// SetCellPosition sets the position of the cell at index i.
func (pp *Population) SetCellPosition(i int, v mat32.Vec3) {
	ps := pp.Positions()
	n := pp.Sz
	ps.Values[i] = v.X
	ps.Values[n+i] = v.Y
	ps.Values[2*n+i] = v.Z
}

// Nearest returns the cell whose position minimizes squared Euclidean
// distance to the query point.  Ties break to the lowest index.  Periodic
// boundaries and exact equidistance get no special handling.
func (pp *Population) Nearest(q mat32.Vec3) (ID, error) {
	if pp.Sz == 0 {
		return ID{}, fmt.Errorf("%w: population %s is empty", ErrNotPresent, pp.Nm)
	}
	ps := pp.Positions()
	n := pp.Sz
	best := math32.Inf(1)
	bi := 0
	for i := 0; i < n; i++ {
		dx := ps.Values[i] - q.X
		dy := ps.Values[n+i] - q.Y
		dz := ps.Values[2*n+i] - q.Z
		d := dx*dx + dy*dy + dz*dz
		if d < best {
			best = d
			bi = i
		}
	}
	return ID{Pop: pp, Idx: bi}, nil
}

//////////////////////////////////////////////////////////////////////////////////////
//  Sampling, recording, persistence

// Sample returns a view over n cells drawn without replacement via a
// permutation of [0, Size).
func (pp *Population) Sample(n int, rng *rand.Rand) (*View, error) {
	if n < 0 || n > pp.Sz {
		return nil, fmt.Errorf("%w: cannot sample %d of %d cells", ErrIDRange, n, pp.Sz)
	}
	idxs := rng.Perm(pp.Sz)[:n]
	return NewView(pp, IndexMask(idxs...), "")
}

// Record starts recording the named state variables for all cells at the
// given sampling interval (ms).  Unknown variables are schema errors.
func (pp *Population) Record(variables []string, interval float64, location string) error {
	for _, v := range variables {
		if !pp.Ct.CanRecord(v) {
			return fmt.Errorf("cell type %s: %w: cannot record %q (recordable: %v)",
				pp.Ct.Name(), cells.ErrNoSuchParameter, v, pp.Ct.Recordable())
		}
	}
	pp.rec.Record(variables, pp.RootIndices(), interval, location)
	return nil
}

// Recorder returns the population's recorder, shared with all views.
func (pp *Population) Recorder() *record.Recorder { return pp.rec }

// RecordFilter returns nil: a population records all of its cells.
func (pp *Population) RecordFilter() []int { return nil }

// GetData returns the recorded data for the named variables (nil = all),
// deleting it from the recorder if clear is set.
func (pp *Population) GetData(variables []string, clear bool) (*record.Block, error) {
	return pp.rec.Get(variables, pp.RecordFilter(), clear)
}

// WriteData writes recorded data to text files.  With gather, only the
// coordinating node writes; every node must invoke this identically.
func (pp *Population) WriteData(filename string, variables []string, gather, clear bool) error {
	return pp.rec.Write(filename, variables, gather, pp.RecordFilter(), clear)
}

// SpikeCounts returns the number of recorded spikes per cell, keyed by
// global identifier.
func (pp *Population) SpikeCounts(gather bool) (map[int]int, error) {
	cts, err := pp.rec.Count(record.Spikes, gather, pp.RecordFilter())
	if err != nil {
		return nil, err
	}
	out := make(map[int]int, len(cts))
	for ci, n := range cts {
		out[pp.FirstID+ci] = n
	}
	return out, nil
}

// MeanSpikeCount returns the mean number of spikes per cell.  With
// gather, only the coordinator returns a meaningful value; other nodes
// return NaN.
func (pp *Population) MeanSpikeCount(gather bool) (float64, error) {
	cts, err := pp.SpikeCounts(gather)
	if err != nil {
		return 0, err
	}
	if gather && !pp.NodeSt.Coordinator() {
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

// CurrentSource is the injection collaborator: it connects itself to the
// given cells.
type CurrentSource interface {
	InjectInto(cells []ID) error
}

// Inject connects a current source to all local cells of the population.
func (pp *Population) Inject(cs CurrentSource) error {
	if !pp.Ct.Injectable() {
		return fmt.Errorf("cell type %s: cannot inject current into a spike source", pp.Ct.Name())
	}
	return cs.InjectInto(pp.LocalCells())
}

// SavePositions writes (index, x, y, z) rows for all cells to the named
// file, with a header naming the population.  Only the coordinating node
// writes.
func (pp *Population) SavePositions(filename string) error {
	if !pp.NodeSt.Coordinator() {
		return nil
	}
	return savePositions(filename, "population", pp.Nm, pp.RootIndices(), pp.Positions())
}

func (pp *Population) String() string {
	return fmt.Sprintf("Population(%d, %s, label=%q)", pp.Sz, pp.Ct.Name(), pp.Nm)
}

// Describe returns a human-readable description of the population.
func (pp *Population) Describe() string {
	return fmt.Sprintf("%s: %d cells of type %s, %d local, ids [%d,%d]",
		pp.Nm, pp.Sz, pp.Ct.Name(), pp.LocalSize(), pp.FirstID, pp.LastID)
}

// sortedKeys returns map keys sorted, so that map-driven operations run in
// the same order on every node.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

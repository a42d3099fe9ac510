// Copyright (c) 2024, The Popnet Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pop

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"

	"github.com/emer/etable/etensor"
	"github.com/nsim/popnet/lazy"
	"github.com/nsim/popnet/nodes"
	"github.com/nsim/popnet/record"
	"golang.org/x/exp/rand"
)

// Assembly is an ordered collection of populations and views, possibly of
// different cell types.  Members keep their identity: the assembly indexes
// cells by concatenation in member order, and broadcasts operations to the
// members.  A cell can appear at most once across the whole assembly;
// adding a member that overlaps existing members is refused with a logged
// warning.
type Assembly struct {
	Nm      string  `desc:"name of the assembly -- auto-generated when empty"`
	Members []Group `desc:"member populations and views, in insertion order"`
}

// NewAssembly creates an assembly of the given members.  An empty label is
// auto-generated from StdRegistry.  Members overlapping cells already
// present are skipped with a logged warning.
func NewAssembly(label string, members ...Group) *Assembly {
	if label == "" {
		label = StdRegistry.AsmLabel()
	}
	asm := &Assembly{Nm: label}
	for _, m := range members {
		asm.Add(m)
	}
	return asm
}

// Union returns a new assembly of the given groups, with an auto-generated
// label.
func Union(groups ...Group) *Assembly {
	return NewAssembly("", groups...)
}

// overlaps reports whether the candidate member shares any cell with an
// existing member.  Cells are compared by root population and root index.
func (asm *Assembly) overlaps(g Group) bool {
	for _, m := range asm.Members {
		if m.Root() != g.Root() {
			continue
		}
		mi := m.RootIndices()
		gi := g.RootIndices()
		// both ascending: single merge pass
		i, j := 0, 0
		for i < len(mi) && j < len(gi) {
			switch {
			case mi[i] == gi[j]:
				return true
			case mi[i] < gi[j]:
				i++
			default:
				j++
			}
		}
	}
	return false
}

// Add appends a member to the assembly.  A member sharing any cell with an
// existing member is skipped: an assembly can contain each cell at most
// once.
func (asm *Assembly) Add(g Group) {
	if asm.overlaps(g) {
		log.Printf("pop.Assembly: %s: member %q shares cells with an existing member, skipped\n",
			asm.Nm, g.Label())
		return
	}
	asm.Members = append(asm.Members, g)
}

func (asm *Assembly) Label() string { return asm.Nm }

// Size returns the total cell count across all members.
func (asm *Assembly) Size() int {
	n := 0
	for _, m := range asm.Members {
		n += m.Size()
	}
	return n
}

// LocalSize returns the number of node-resident cells across all members.
func (asm *Assembly) LocalSize() int {
	n := 0
	for _, m := range asm.Members {
		n += m.LocalSize()
	}
	return n
}

// Node returns the compute-node state of the first member, nil for an
// empty assembly.  All members of one assembly run on the same node.
func (asm *Assembly) Node() *nodes.State {
	if len(asm.Members) == 0 {
		return nil
	}
	return asm.Members[0].Node()
}

// Boundaries returns the cumulative member offsets: element j is the
// assembly index of member j's first cell, and the final element is the
// assembly size.  Length is len(Members)+1.
func (asm *Assembly) Boundaries() []int {
	bs := make([]int, len(asm.Members)+1)
	for j, m := range asm.Members {
		bs[j+1] = bs[j] + m.Size()
	}
	return bs
}

// AllCells returns the ordered cell identifiers of the whole assembly.
func (asm *Assembly) AllCells() []ID {
	ids := make([]ID, 0, asm.Size())
	for _, m := range asm.Members {
		ids = append(ids, m.AllCells()...)
	}
	return ids
}

// LocalCells returns the node-resident cell identifiers, in assembly order.
func (asm *Assembly) LocalCells() []ID {
	var ids []ID
	for _, m := range asm.Members {
		ids = append(ids, m.LocalCells()...)
	}
	return ids
}

// LocalMask returns the residency mask over the assembly's cells.
func (asm *Assembly) LocalMask() []bool {
	msk := make([]bool, 0, asm.Size())
	for _, m := range asm.Members {
		msk = append(msk, m.LocalMask()...)
	}
	return msk
}

// memberAt returns the member containing assembly index i, with the
// member-relative index.
func (asm *Assembly) memberAt(i int) (Group, int, error) {
	if i < 0 || i >= asm.Size() {
		return nil, 0, fmt.Errorf("%w: index %d not in [0,%d)", ErrIDRange, i, asm.Size())
	}
	bs := asm.Boundaries()
	// largest j with bs[j] <= i
	j := sort.Search(len(asm.Members), func(j int) bool { return bs[j+1] > i })
	return asm.Members[j], i - bs[j], nil
}

// CellAt returns the cell at assembly index i.
func (asm *Assembly) CellAt(i int) (ID, error) {
	m, mi, err := asm.memberAt(i)
	if err != nil {
		return ID{}, err
	}
	return m.CellAt(mi)
}

// IDToIndex returns the assembly index of the given cell, or ErrNotPresent.
func (asm *Assembly) IDToIndex(id ID) (int, error) {
	bs := asm.Boundaries()
	for j, m := range asm.Members {
		k, err := m.IDToIndex(id)
		if err == nil {
			return bs[j] + k, nil
		}
	}
	return 0, fmt.Errorf("%w: cell %s not in assembly %s", ErrNotPresent, id, asm.Nm)
}

// GetPopulation returns the member with the given label, or ErrNotPresent.
func (asm *Assembly) GetPopulation(label string) (Group, error) {
	for _, m := range asm.Members {
		if m.Label() == label {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: no member labelled %q in assembly %s", ErrNotPresent, label, asm.Nm)
}

// Select returns a new assembly over the masked assembly indices,
// partitioned by member: each member contributing cells becomes a view
// member of the result.
func (asm *Assembly) Select(msk Mask) (*Assembly, error) {
	nm, err := msk.Normalize(asm.Size())
	if err != nil {
		return nil, fmt.Errorf("assembly %s: %w", asm.Nm, err)
	}
	bs := asm.Boundaries()
	sel := NewAssembly("")
	idxs := nm.Indices()
	k := 0
	for j, m := range asm.Members {
		var rel []int
		for k < len(idxs) && idxs[k] < bs[j+1] {
			rel = append(rel, idxs[k]-bs[j])
			k++
		}
		if len(rel) == 0 {
			continue
		}
		vw, err := m.ViewAt(IndexMask(rel...))
		if err != nil {
			return nil, err
		}
		sel.Add(vw)
	}
	return sel, nil
}

// Sample returns a new assembly over n cells drawn without replacement
// across the whole assembly.
func (asm *Assembly) Sample(n int, rng *rand.Rand) (*Assembly, error) {
	if n < 0 || n > asm.Size() {
		return nil, fmt.Errorf("%w: cannot sample %d of %d cells", ErrIDRange, n, asm.Size())
	}
	idxs := rng.Perm(asm.Size())[:n]
	return asm.Select(IndexMask(idxs...))
}

//////////////////////////////////////////////////////////////////////////////////////
//  Parameters, initial values

// Get returns current values of the named parameters across all members,
// concatenated in assembly order.  Every member's cell type must define
// every requested parameter.  With simplify, values uniform across the
// whole assembly collapse to scalars.
func (asm *Assembly) Get(names []string, gather, simplify bool) (map[string]lazy.Result, error) {
	out := make(map[string]lazy.Result, len(names))
	acc := make(map[string][]float64, len(names))
	for _, m := range asm.Members {
		mv, err := m.Get(names, gather, false)
		if err != nil {
			return nil, fmt.Errorf("assembly %s: member %q: %w", asm.Nm, m.Label(), err)
		}
		for _, name := range names {
			acc[name] = append(acc[name], mv[name].Values...)
		}
	}
	for _, name := range names {
		if simplify {
			out[name] = lazy.Simplify(acc[name])
		} else {
			out[name] = lazy.Result{Values: acc[name]}
		}
	}
	return out, nil
}

// Set assigns parameters on every member.  Each member receives its own
// unevaluated copy of each value, shaped to the member's size, so random
// and function sources index per member, not per assembly.
func (asm *Assembly) Set(params map[string]*lazy.Array) error {
	for _, m := range asm.Members {
		mp := make(map[string]*lazy.Array, len(params))
		for name, ar := range params {
			mp[name] = ar.Clone()
		}
		if err := m.Set(mp); err != nil {
			return fmt.Errorf("assembly %s: member %q: %w", asm.Nm, m.Label(), err)
		}
	}
	return nil
}

// Initialize assigns initial values of state variables on every member,
// with the same per-member value copy contract as Set.
func (asm *Assembly) Initialize(values map[string]*lazy.Array) error {
	for _, m := range asm.Members {
		mv := make(map[string]*lazy.Array, len(values))
		for variable, ar := range values {
			mv[variable] = ar.Clone()
		}
		if err := m.Initialize(mv); err != nil {
			return fmt.Errorf("assembly %s: member %q: %w", asm.Nm, m.Label(), err)
		}
	}
	return nil
}

//////////////////////////////////////////////////////////////////////////////////////
//  Positions, recording

// Positions returns the 3 x Size coordinate table of the assembly's cells,
// concatenated in member order.
func (asm *Assembly) Positions() *etensor.Float32 {
	n := asm.Size()
	ps := etensor.NewFloat32([]int{3, n}, nil, []string{"XYZ", "N"})
	off := 0
	for _, m := range asm.Members {
		mp := m.Positions()
		mn := m.Size()
		for i := 0; i < mn; i++ {
			ps.Values[off+i] = mp.Values[i]
			ps.Values[n+off+i] = mp.Values[mn+i]
			ps.Values[2*n+off+i] = mp.Values[2*mn+i]
		}
		off += mn
	}
	return ps
}

// SavePositions writes (assembly index, x, y, z) rows for all cells.
// Only the coordinating node writes.
func (asm *Assembly) SavePositions(filename string) error {
	nd := asm.Node()
	if nd != nil && !nd.Coordinator() {
		return nil
	}
	idxs := make([]int, asm.Size())
	for i := range idxs {
		idxs[i] = i
	}
	return savePositions(filename, "assembly", asm.Nm, idxs, asm.Positions())
}

// Record starts recording the named state variables on every member.
func (asm *Assembly) Record(variables []string, interval float64, location string) error {
	for _, m := range asm.Members {
		if err := m.Record(variables, interval, location); err != nil {
			return fmt.Errorf("assembly %s: member %q: %w", asm.Nm, m.Label(), err)
		}
	}
	return nil
}

// GetData returns the recorded data of all members merged into one block,
// with channels renumbered to assembly indices.  Members with no recorded
// data are skipped; if no member has any, returns ErrNothingToWrite.
func (asm *Assembly) GetData(variables []string, clear bool) (*record.Block, error) {
	bs := asm.Boundaries()
	merged := record.NewBlock(asm.Nm)
	got := 0
	for j, m := range asm.Members {
		bk, err := m.GetData(variables, clear)
		if errors.Is(err, record.ErrNothingToWrite) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("assembly %s: member %q: %w", asm.Nm, m.Label(), err)
		}
		got++
		// member channels are root-population cell indices; renumber to
		// assembly indices via the member's cell order
		ri := m.RootIndices()
		amap := make(map[int]int, len(ri))
		for k, gi := range ri {
			amap[gi] = bs[j] + k
		}
		bk.RenumberChannels(func(ch int) int { return amap[ch] })
		merged.Merge(bk)
	}
	if got == 0 {
		return nil, fmt.Errorf("%s: %w: %v", asm.Nm, record.ErrNothingToWrite, variables)
	}
	return merged, nil
}

// WriteData writes the assembly's merged recorded data to text files named
// filename.<variable>.  With gather, only the coordinating node writes;
// without, every node writes its own data with a .<rank> suffix.
func (asm *Assembly) WriteData(filename string, variables []string, gather, clear bool) error {
	bk, err := asm.GetData(variables, clear)
	if err != nil {
		return err
	}
	nd := asm.Node()
	if gather && nd != nil && !nd.Coordinator() {
		return nil
	}
	if !gather && nd != nil && nd.NProcs > 1 {
		filename = fmt.Sprintf("%s.%d", filename, nd.Rank)
	}
	return record.WriteBlock(filename, bk, map[string]string{"assembly": asm.Nm})
}

// SpikeCounts returns recorded spike counts per cell across all members,
// keyed by global identifier.  Members with no recorded spikes contribute
// nothing.
func (asm *Assembly) SpikeCounts(gather bool) (map[int]int, error) {
	out := make(map[int]int)
	for _, m := range asm.Members {
		cts, err := m.SpikeCounts(gather)
		if errors.Is(err, record.ErrNothingToWrite) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("assembly %s: member %q: %w", asm.Nm, m.Label(), err)
		}
		for gid, n := range cts {
			out[gid] = n
		}
	}
	return out, nil
}

// MeanSpikeCount returns the mean number of spikes per cell across all
// members with recorded spikes.  With gather, non-coordinating nodes
// return NaN.
func (asm *Assembly) MeanSpikeCount(gather bool) (float64, error) {
	cts, err := asm.SpikeCounts(gather)
	if err != nil {
		return 0, err
	}
	nd := asm.Node()
	if gather && nd != nil && !nd.Coordinator() {
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

//////////////////////////////////////////////////////////////////////////////////////
//  Capabilities

// ConductanceBased reports whether every member's post-synaptic response
// is a conductance change.
func (asm *Assembly) ConductanceBased() bool {
	for _, m := range asm.Members {
		if !m.ConductanceBased() {
			return false
		}
	}
	return true
}

// Injectable reports whether current can be injected into every member.
func (asm *Assembly) Injectable() bool {
	for _, m := range asm.Members {
		if !m.Injectable() {
			return false
		}
	}
	return true
}

// ReceptorTypes returns the receptor type names common to all members.
func (asm *Assembly) ReceptorTypes() []string {
	if len(asm.Members) == 0 {
		return nil
	}
	common := asm.Members[0].ReceptorTypes()
	for _, m := range asm.Members[1:] {
		have := make(map[string]bool)
		for _, rt := range m.ReceptorTypes() {
			have[rt] = true
		}
		var keep []string
		for _, rt := range common {
			if have[rt] {
				keep = append(keep, rt)
			}
		}
		common = keep
	}
	return common
}

// Inject connects a current source to the local cells of every member.
func (asm *Assembly) Inject(cs CurrentSource) error {
	if !asm.Injectable() {
		return fmt.Errorf("assembly %s: not all members accept current injection", asm.Nm)
	}
	return cs.InjectInto(asm.LocalCells())
}

func (asm *Assembly) String() string {
	lbls := make([]string, len(asm.Members))
	for j, m := range asm.Members {
		lbls[j] = m.Label()
	}
	return fmt.Sprintf("Assembly(%q: %s)", asm.Nm, strings.Join(lbls, ", "))
}

// Describe returns a human-readable description of the assembly.
func (asm *Assembly) Describe() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %d cells in %d members\n", asm.Nm, asm.Size(), len(asm.Members))
	for _, m := range asm.Members {
		fmt.Fprintf(&sb, "  %s: %d cells of type %s\n", m.Label(), m.Size(), m.CellType().Name())
	}
	return sb.String()
}

// Copyright (c) 2024, The Popnet Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package record implements the recording collaborator for populations: which
variables are recorded for which cells, in-memory sample storage in etable
Tables, spike counting, and writing recorded data to files on the
coordinating node.

One Recorder is owned by each Population; views share the parent's recorder
and restrict it to their own cells with a filter.
*/
package record

import (
	"errors"
	"fmt"
	"sort"

	"github.com/emer/etable/etable"
	"github.com/emer/etable/etensor"
	"github.com/nsim/popnet/nodes"
)

var (
	// ErrNothingToWrite signals that a node has no recorded data for a
	// request -- distinct from a zero-length successful result.
	ErrNothingToWrite = errors.New("nothing to write")

	// ErrNotRecorded is wrapped by requests for a variable that was never
	// recorded.
	ErrNotRecorded = errors.New("variable was not recorded")
)

// Spikes is the variable name under which spike events are recorded.
const Spikes = "spikes"

// VarRecord holds the recording state and sample storage for one variable.
//
// For spikes the table has columns (Time, Channel), one row per event.
// For analog variables the table has a Time column plus one data column per
// recorded cell, one row per sample time; Channels gives the cell index
// behind each data column.
type VarRecord struct {
	Name     string        `desc:"variable name"`
	Cells    []int         `desc:"sorted global cell indices being recorded"`
	Interval float64       `desc:"sampling interval in ms; 0 means every timestep"`
	Location string        `desc:"recording location on the cell, empty for the default (soma)"`
	Table    *etable.Table `desc:"sample storage"`
}

func newVarRecord(name string, cellIdxs []int, interval float64, location string) *VarRecord {
	vr := &VarRecord{Name: name, Cells: cellIdxs, Interval: interval, Location: location}
	dt := &etable.Table{}
	if name == Spikes {
		dt.SetFromSchema(etable.Schema{
			{Name: "Time", Type: etensor.FLOAT64, CellShape: nil, DimNames: nil},
			{Name: "Channel", Type: etensor.FLOAT64, CellShape: nil, DimNames: nil},
		}, 0)
	} else {
		sch := etable.Schema{{Name: "Time", Type: etensor.FLOAT64, CellShape: nil, DimNames: nil}}
		for _, ci := range cellIdxs {
			sch = append(sch, etable.Column{Name: fmt.Sprintf("Ch%d", ci), Type: etensor.FLOAT64, CellShape: nil, DimNames: nil})
		}
		dt.SetFromSchema(sch, 0)
	}
	dt.SetMetaData("name", name)
	vr.Table = dt
	return vr
}

// Recorder records variables for a population of Size cells on the local
// node.  Engines push samples in; consumers pull Blocks, counts, or files
// out.
type Recorder struct {
	Label string       `desc:"label of the owning population"`
	Size  int          `desc:"total cell count of the owning population (all nodes)"`
	Node  *nodes.State `desc:"local node state, for gather and coordinator checks"`

	vars  map[string]*VarRecord
	order []string
}

// NewRecorder returns a recorder for a population with the given label and
// total size.
func NewRecorder(label string, size int, node *nodes.State) *Recorder {
	return &Recorder{Label: label, Size: size, Node: node, vars: make(map[string]*VarRecord)}
}

// Record starts recording the given variables for the given cells.
// cellIdxs are global cell indices; they are sorted internally.  Calling
// Record again for a variable unions the new cells into its recorded set,
// keeping existing samples -- a recorder is shared between a population and
// all of its views, so each view adds its own cells.  The latest interval
// and location win.  Use Reset to stop recording.
func (rc *Recorder) Record(variables []string, cellIdxs []int, interval float64, location string) {
	idxs := make([]int, len(cellIdxs))
	copy(idxs, cellIdxs)
	sort.Ints(idxs)
	for _, v := range variables {
		vr, ok := rc.vars[v]
		if !ok {
			rc.order = append(rc.order, v)
			rc.vars[v] = newVarRecord(v, idxs, interval, location)
			continue
		}
		vr.addCells(idxs)
		vr.Interval = interval
		vr.Location = location
	}
}

// addCells unions new cell indices into the recorded set.  For analog
// variables the sample table gains a data column per new cell; existing
// samples are kept, with the new columns reading zero for rows sampled
// before the union.
func (vr *VarRecord) addCells(idxs []int) {
	var add []int
	for _, ci := range idxs {
		if !vr.recording(ci) {
			add = append(add, ci)
		}
	}
	if len(add) == 0 {
		return
	}
	merged := make([]int, 0, len(vr.Cells)+len(add))
	merged = append(merged, vr.Cells...)
	merged = append(merged, add...)
	sort.Ints(merged)
	if vr.Name == Spikes {
		vr.Cells = merged
		return
	}
	sch := etable.Schema{{Name: "Time", Type: etensor.FLOAT64, CellShape: nil, DimNames: nil}}
	for _, ci := range merged {
		sch = append(sch, etable.Column{Name: fmt.Sprintf("Ch%d", ci), Type: etensor.FLOAT64, CellShape: nil, DimNames: nil})
	}
	dt := &etable.Table{}
	dt.SetFromSchema(sch, vr.Table.Rows)
	dt.SetMetaData("name", vr.Name)
	for row := 0; row < vr.Table.Rows; row++ {
		dt.SetCellFloat("Time", row, vr.Table.CellFloat("Time", row))
		for _, ci := range vr.Cells {
			col := fmt.Sprintf("Ch%d", ci)
			dt.SetCellFloat(col, row, vr.Table.CellFloat(col, row))
		}
	}
	vr.Cells = merged
	vr.Table = dt
}

// Reset stops all recording and discards all samples.
func (rc *Recorder) Reset() {
	rc.vars = make(map[string]*VarRecord)
	rc.order = nil
}

// Recorded returns whether the variable is being recorded.
func (rc *Recorder) Recorded(variable string) bool {
	_, ok := rc.vars[variable]
	return ok
}

// Variables returns the recorded variable names in recording order.
func (rc *Recorder) Variables() []string {
	return rc.order
}

// recording returns whether the given (local) cell index is in the
// variable's recorded set.
func (vr *VarRecord) recording(ci int) bool {
	k := sort.SearchInts(vr.Cells, ci)
	return k < len(vr.Cells) && vr.Cells[k] == ci
}

// AddSpikes appends spike events at the given time for the given cells.
// Cells not being recorded are skipped.
func (rc *Recorder) AddSpikes(time float64, cellIdxs []int) error {
	vr, ok := rc.vars[Spikes]
	if !ok {
		return fmt.Errorf("%s: %w: %q", rc.Label, ErrNotRecorded, Spikes)
	}
	for _, ci := range cellIdxs {
		if !vr.recording(ci) {
			continue
		}
		row := vr.Table.Rows
		vr.Table.SetNumRows(row + 1)
		vr.Table.SetCellFloat("Time", row, time)
		vr.Table.SetCellFloat("Channel", row, float64(ci))
	}
	return nil
}

// AddSample appends one sample row for an analog variable: vals[i] is the
// value for cellIdxs[i] at the given time.  Cells not being recorded are
// skipped; recorded cells missing from the call keep zero for this row.
func (rc *Recorder) AddSample(variable string, time float64, cellIdxs []int, vals []float64) error {
	vr, ok := rc.vars[variable]
	if !ok {
		return fmt.Errorf("%s: %w: %q", rc.Label, ErrNotRecorded, variable)
	}
	if variable == Spikes {
		return fmt.Errorf("%s: use AddSpikes for spike events", rc.Label)
	}
	if len(cellIdxs) != len(vals) {
		return fmt.Errorf("%s: %d cells but %d values", rc.Label, len(cellIdxs), len(vals))
	}
	row := vr.Table.Rows
	vr.Table.SetNumRows(row + 1)
	vr.Table.SetCellFloat("Time", row, time)
	for i, ci := range cellIdxs {
		if !vr.recording(ci) {
			continue
		}
		vr.Table.SetCellFloat(fmt.Sprintf("Ch%d", ci), row, vals[i])
	}
	return nil
}

// filtered returns the recorded cells restricted to filter (nil = all).
func filtered(cells []int, filter []int) []int {
	if filter == nil {
		return cells
	}
	fset := make(map[int]bool, len(filter))
	for _, ci := range filter {
		fset[ci] = true
	}
	var out []int
	for _, ci := range cells {
		if fset[ci] {
			out = append(out, ci)
		}
	}
	return out
}

// Count returns the number of spike events per cell, keyed by global cell
// index, for recorded cells (restricted to filter if non-nil).  With
// gather, counts are collected across all nodes through the exchanger.
// Returns ErrNothingToWrite if spikes were never recorded.
func (rc *Recorder) Count(variable string, gather bool, filter []int) (map[int]int, error) {
	vr, ok := rc.vars[variable]
	if !ok {
		return nil, fmt.Errorf("%s: %w: %q", rc.Label, ErrNothingToWrite, variable)
	}
	cells := filtered(vr.Cells, filter)
	counts := make(map[int]int, len(cells))
	for _, ci := range cells {
		counts[ci] = 0
	}
	nr := vr.Table.Rows
	for row := 0; row < nr; row++ {
		ci := int(vr.Table.CellFloat("Channel", row))
		if _, ok := counts[ci]; ok {
			counts[ci]++
		}
	}
	if gather && rc.Node.NProcs > 1 {
		// contribute only nonzero counts: a cell's events live on the rank
		// that owns it, and an explicit zero from a non-owner would clobber
		// the owner's count in the merge
		var idxs []int
		var vals []float64
		for _, ci := range cells {
			if counts[ci] > 0 {
				idxs = append(idxs, ci)
				vals = append(vals, float64(counts[ci]))
			}
		}
		all, err := rc.Node.Exch.GatherValues(idxs, vals, rc.Size)
		if err != nil {
			return nil, err
		}
		gathered := make(map[int]int, len(cells))
		for _, ci := range cells {
			gathered[ci] = int(all[ci])
		}
		return gathered, nil
	}
	return counts, nil
}

// Get returns a Block of the recorded data for the given variables
// (nil = all recorded), restricted to filter if non-nil.  If clear is set,
// the returned samples are removed from the recorder.  Returns
// ErrNothingToWrite when none of the requested variables have been
// recorded.
func (rc *Recorder) Get(variables []string, filter []int, clear bool) (*Block, error) {
	if variables == nil {
		variables = rc.order
	}
	bk := NewBlock(rc.Label)
	got := 0
	for _, v := range variables {
		vr, ok := rc.vars[v]
		if !ok {
			continue
		}
		got++
		dt, chs := vr.extract(filter)
		bk.add(v, dt, chs)
		if clear {
			rc.vars[v] = newVarRecord(v, vr.Cells, vr.Interval, vr.Location)
		}
	}
	if got == 0 {
		return nil, fmt.Errorf("%s: %w: %v", rc.Label, ErrNothingToWrite, variables)
	}
	return bk, nil
}

// extract copies the variable's data restricted to filter into a fresh
// table + channel list.
func (vr *VarRecord) extract(filter []int) (*etable.Table, []int) {
	cells := filtered(vr.Cells, filter)
	if vr.Name == Spikes {
		dt := &etable.Table{}
		dt.SetFromSchema(etable.Schema{
			{Name: "Time", Type: etensor.FLOAT64, CellShape: nil, DimNames: nil},
			{Name: "Channel", Type: etensor.FLOAT64, CellShape: nil, DimNames: nil},
		}, 0)
		dt.SetMetaData("name", vr.Name)
		keep := make(map[int]bool, len(cells))
		for _, ci := range cells {
			keep[ci] = true
		}
		for row := 0; row < vr.Table.Rows; row++ {
			ci := int(vr.Table.CellFloat("Channel", row))
			if !keep[ci] {
				continue
			}
			nr := dt.Rows
			dt.SetNumRows(nr + 1)
			dt.SetCellFloat("Time", nr, vr.Table.CellFloat("Time", row))
			dt.SetCellFloat("Channel", nr, float64(ci))
		}
		return dt, cells
	}
	sch := etable.Schema{{Name: "Time", Type: etensor.FLOAT64, CellShape: nil, DimNames: nil}}
	for _, ci := range cells {
		sch = append(sch, etable.Column{Name: fmt.Sprintf("Ch%d", ci), Type: etensor.FLOAT64, CellShape: nil, DimNames: nil})
	}
	dt := &etable.Table{}
	dt.SetFromSchema(sch, vr.Table.Rows)
	dt.SetMetaData("name", vr.Name)
	for row := 0; row < vr.Table.Rows; row++ {
		dt.SetCellFloat("Time", row, vr.Table.CellFloat("Time", row))
		for _, ci := range cells {
			col := fmt.Sprintf("Ch%d", ci)
			dt.SetCellFloat(col, row, vr.Table.CellFloat(col, row))
		}
	}
	return dt, cells
}

// Copyright (c) 2024, The Popnet Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package record

import (
	"fmt"

	"github.com/emer/etable/etable"
	"github.com/emer/etable/etensor"
)

// Block is recorded data pulled out of one or more recorders: one table
// per variable, plus the channel numbering behind each analog table's data
// columns.  Channel indices are cell indices within the owning container;
// when blocks from several assembly members are merged, each member's
// channels are shifted by its running cell-count offset so that numbering
// is globally unique and order-preserving.
type Block struct {
	Label    string                   `desc:"label of the source population or assembly"`
	Tables   map[string]*etable.Table `desc:"recorded data per variable"`
	Channels map[string][]int         `desc:"per variable: channel index of each analog data column"`

	order []string
}

// NewBlock returns an empty block with the given label.
func NewBlock(label string) *Block {
	return &Block{
		Label:    label,
		Tables:   make(map[string]*etable.Table),
		Channels: make(map[string][]int),
	}
}

// Variables returns the block's variable names in insertion order.
func (bk *Block) Variables() []string { return bk.order }

func (bk *Block) add(variable string, dt *etable.Table, channels []int) {
	if _, ok := bk.Tables[variable]; !ok {
		bk.order = append(bk.order, variable)
	}
	bk.Tables[variable] = dt
	bk.Channels[variable] = channels
}

// ShiftChannels renumbers every channel index in the block by offset.
func (bk *Block) ShiftChannels(offset int) {
	bk.RenumberChannels(func(ch int) int { return ch + offset })
}

// RenumberChannels applies f to every channel index in the block: the
// per-variable channel lists, the Channel column of spike tables, and the
// data column names of analog tables.
func (bk *Block) RenumberChannels(f func(ch int) int) {
	for v, chs := range bk.Channels {
		nchs := make([]int, len(chs))
		for i, ch := range chs {
			nchs[i] = f(ch)
		}
		if v != Spikes {
			bk.Tables[v] = renumberAnalog(bk.Tables[v], v, chs, nchs)
		}
		bk.Channels[v] = nchs
	}
	if dt, ok := bk.Tables[Spikes]; ok {
		for row := 0; row < dt.Rows; row++ {
			ch := int(dt.CellFloat("Channel", row))
			dt.SetCellFloat("Channel", row, float64(f(ch)))
		}
	}
}

// renumberAnalog rebuilds an analog table with its data columns renamed
// from the old channel numbering to the new one.
func renumberAnalog(dt *etable.Table, v string, chs, nchs []int) *etable.Table {
	sch := etable.Schema{{Name: "Time", Type: etensor.FLOAT64, CellShape: nil, DimNames: nil}}
	for _, ch := range nchs {
		sch = append(sch, etable.Column{Name: fmt.Sprintf("Ch%d", ch), Type: etensor.FLOAT64, CellShape: nil, DimNames: nil})
	}
	mdt := &etable.Table{}
	mdt.SetFromSchema(sch, dt.Rows)
	mdt.SetMetaData("name", v)
	for row := 0; row < dt.Rows; row++ {
		mdt.SetCellFloat("Time", row, dt.CellFloat("Time", row))
		for i, ch := range chs {
			mdt.SetCellFloat(fmt.Sprintf("Ch%d", nchs[i]), row,
				dt.CellFloat(fmt.Sprintf("Ch%d", ch), row))
		}
	}
	return mdt
}

// Merge appends the other block's data into this one.  Spike tables
// concatenate rows; analog tables concatenate data columns, padding with
// zero rows when sample counts differ.  Channel numbering must already
// have been shifted to be disjoint.
func (bk *Block) Merge(other *Block) {
	for _, v := range other.order {
		odt := other.Tables[v]
		dt, ok := bk.Tables[v]
		if !ok {
			bk.add(v, odt, other.Channels[v])
			continue
		}
		if v == Spikes {
			for row := 0; row < odt.Rows; row++ {
				nr := dt.Rows
				dt.SetNumRows(nr + 1)
				dt.SetCellFloat("Time", nr, odt.CellFloat("Time", row))
				dt.SetCellFloat("Channel", nr, odt.CellFloat("Channel", row))
			}
			continue
		}
		bk.mergeAnalog(v, dt, odt, other.Channels[v])
	}
}

// mergeAnalog rebuilds the variable's table with the union of both column
// sets, copying the sample values across.
func (bk *Block) mergeAnalog(v string, dt, odt *etable.Table, ochs []int) {
	chs := bk.Channels[v]
	sch := etable.Schema{{Name: "Time", Type: etensor.FLOAT64, CellShape: nil, DimNames: nil}}
	for _, ch := range chs {
		sch = append(sch, etable.Column{Name: fmt.Sprintf("Ch%d", ch), Type: etensor.FLOAT64, CellShape: nil, DimNames: nil})
	}
	for _, ch := range ochs {
		sch = append(sch, etable.Column{Name: fmt.Sprintf("Ch%d", ch), Type: etensor.FLOAT64, CellShape: nil, DimNames: nil})
	}
	rows := dt.Rows
	if odt.Rows > rows {
		rows = odt.Rows
	}
	mdt := &etable.Table{}
	mdt.SetFromSchema(sch, rows)
	mdt.SetMetaData("name", v)
	for row := 0; row < dt.Rows; row++ {
		mdt.SetCellFloat("Time", row, dt.CellFloat("Time", row))
		for _, ch := range chs {
			col := fmt.Sprintf("Ch%d", ch)
			mdt.SetCellFloat(col, row, dt.CellFloat(col, row))
		}
	}
	for row := 0; row < odt.Rows; row++ {
		for _, ch := range ochs {
			col := fmt.Sprintf("Ch%d", ch)
			mdt.SetCellFloat(col, row, odt.CellFloat(col, row))
		}
	}
	bk.Tables[v] = mdt
	bk.Channels[v] = append(chs, ochs...)
}

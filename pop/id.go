// Copyright (c) 2024, The Popnet Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pop

import (
	"fmt"

	"github.com/goki/mat32"
	"github.com/nsim/popnet/cells"
)

// ID is a lightweight handle naming one cell within its owning population:
// the population reference plus the cell's global index.  It is a cheap
// value type; all behavior resolves through the owning population.
// Equality and ordering are by the global identifier (GID).
type ID struct {
	Pop *Population `desc:"owning population -- a back-reference, not ownership"`
	Idx int         `desc:"index of the cell within the population, 0..size-1"`
}

// GID returns the global identifier of the cell.  Identifiers within one
// population form the contiguous range [FirstID, LastID], so
// Idx == GID() - FirstID.
func (id ID) GID() int { return id.Pop.FirstID + id.Idx }

// Local reports whether the cell is resident on the current compute node.
func (id ID) Local() bool { return id.Pop.localMask[id.Idx] }

// CellType returns the owning population's cell type.
func (id ID) CellType() cells.Type { return id.Pop.Ct }

// Position returns the cell's position in 3D space.  Positions are stored
// in the parent population and generated from its structure on first
// access.
func (id ID) Position() mat32.Vec3 { return id.Pop.CellPosition(id.Idx) }

// SetPosition sets the cell's position in the parent population's
// position table.
func (id ID) SetPosition(ps mat32.Vec3) { id.Pop.SetCellPosition(id.Idx, ps) }

// GetParameter returns the current value of the named parameter for this
// cell, in user units.  The cell must be local to this node.
func (id ID) GetParameter(name string) (float64, error) {
	if !id.Local() {
		return 0, fmt.Errorf("%w: cannot get parameters of cell %d", ErrNotLocal, id.GID())
	}
	return id.Pop.cellParameter(name, id.Idx)
}

// SetParameter sets the named parameter for this cell.  The cell must be
// local to this node.
func (id ID) SetParameter(name string, val float64) error {
	if !id.Local() {
		return fmt.Errorf("%w: cannot set parameters of cell %d", ErrNotLocal, id.GID())
	}
	return id.Pop.setCellParameter(name, id.Idx, val)
}

// InitialValue returns the initial value of the named state variable for
// this cell.  An uninitialized variable reads as 0 with a logged warning.
func (id ID) InitialValue(variable string) (float64, error) {
	return id.Pop.cellInitialValue(variable, id.Idx)
}

// SetInitialValue sets the initial value of the named state variable for
// this cell.
func (id ID) SetInitialValue(variable string, val float64) error {
	return id.Pop.setCellInitialValue(variable, id.Idx, val)
}

// AsView returns a single-cell view containing just this cell.
func (id ID) AsView() (*View, error) {
	return NewView(id.Pop, IndexMask(id.Idx), "")
}

func (id ID) String() string {
	if id.Pop == nil {
		return "ID(nil)"
	}
	return fmt.Sprintf("%s[%d]", id.Pop.Nm, id.Idx)
}

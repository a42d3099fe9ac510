// Copyright (c) 2024, The Popnet Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pop

import (
	"fmt"
	"log"
	"sort"

	"github.com/goki/ki/kit"
)

// MaskKind is the selector variant of a Mask.
type MaskKind int

var KiT_MaskKind = kit.Enums.AddEnum(MaskKindN, kit.NotBitFlag, nil)

func (mk MaskKind) MarshalJSON() ([]byte, error)  { return kit.EnumMarshalJSON(mk) }
func (mk *MaskKind) UnmarshalJSON(b []byte) error { return kit.EnumUnmarshalJSON(mk, b) }

const (
	// Range selects [Start, Stop) with stride Step.
	Range MaskKind = iota

	// IndexList selects an explicit, sorted, duplicate-free index set.
	IndexList

	// Bools selects by a boolean mask of the parent's full length.
	// Normalization converts it to an IndexList.
	Bools

	MaskKindN
)

func (mk MaskKind) String() string {
	switch mk {
	case Range:
		return "Range"
	case IndexList:
		return "IndexList"
	case Bools:
		return "Bools"
	}
	return fmt.Sprintf("MaskKind(%d)", int(mk))
}

// Mask is an ordered selection of parent-relative indices: either a strided
// range or an explicit index set.  Masks passed into view construction are
// normalized first: boolean masks become index lists, index lists are
// sorted and de-duplicated (with a logged warning -- a construction
// warning, not an error), and all indices are checked against the parent
// size.
type Mask struct {
	Kind  MaskKind `desc:"which selector variant this mask carries"`
	Start int      `desc:"first selected index, for Range"`
	Stop  int      `desc:"exclusive upper bound, for Range"`
	Step  int      `desc:"stride, for Range; 0 is treated as 1"`
	Idxs  []int    `desc:"explicit indices, for IndexList"`
	Sel   []bool   `desc:"boolean selection, for Bools"`
}

// RangeMask selects [start, stop) with stride step.
func RangeMask(start, stop, step int) Mask {
	return Mask{Kind: Range, Start: start, Stop: stop, Step: step}
}

// IndexMask selects the given explicit indices.
func IndexMask(idxs ...int) Mask {
	return Mask{Kind: IndexList, Idxs: idxs}
}

// BoolMask selects the true positions of sel, which must have the parent's
// full length.
func BoolMask(sel []bool) Mask {
	return Mask{Kind: Bools, Sel: sel}
}

// Normalize validates the mask against the parent size and returns the
// canonical form: a Range with positive step, or a sorted, duplicate-free
// IndexList.  Duplicates and unsorted index lists are corrected with a
// logged warning; out-of-range indices and mis-sized boolean masks are
// addressing errors.
func (mk Mask) Normalize(parentSize int) (Mask, error) {
	switch mk.Kind {
	case Range:
		step := mk.Step
		if step == 0 {
			step = 1
		}
		if step < 0 {
			return Mask{}, fmt.Errorf("%w: negative step %d in range mask", ErrIDRange, step)
		}
		if mk.Start < 0 || mk.Stop > parentSize {
			return Mask{}, fmt.Errorf("%w: range [%d,%d) outside parent of size %d",
				ErrIDRange, mk.Start, mk.Stop, parentSize)
		}
		return Mask{Kind: Range, Start: mk.Start, Stop: mk.Stop, Step: step}, nil
	case Bools:
		if len(mk.Sel) != parentSize {
			return Mask{}, fmt.Errorf("%w: boolean mask length %d must equal parent size %d",
				ErrIDRange, len(mk.Sel), parentSize)
		}
		var idxs []int
		for i, s := range mk.Sel {
			if s {
				idxs = append(idxs, i)
			}
		}
		return Mask{Kind: IndexList, Idxs: idxs}, nil
	case IndexList:
		for _, ix := range mk.Idxs {
			if ix < 0 || ix >= parentSize {
				return Mask{}, fmt.Errorf("%w: index %d outside parent of size %d",
					ErrIDRange, ix, parentSize)
			}
		}
		idxs := make([]int, len(mk.Idxs))
		copy(idxs, mk.Idxs)
		if !sort.IntsAreSorted(idxs) {
			log.Printf("pop.Mask: unsorted index mask %v sorted\n", idxs)
			sort.Ints(idxs)
		}
		ndup := 0
		out := idxs[:0]
		for i, ix := range idxs {
			if i > 0 && ix == idxs[i-1] {
				ndup++
				continue
			}
			out = append(out, ix)
		}
		if ndup > 0 {
			log.Printf("pop.Mask: a view can contain each cell only once, %d duplicates removed\n", ndup)
		}
		return Mask{Kind: IndexList, Idxs: out}, nil
	}
	return Mask{}, fmt.Errorf("unknown mask kind %v", mk.Kind)
}

// Len returns the number of selected indices of a normalized mask.
func (mk Mask) Len() int {
	switch mk.Kind {
	case Range:
		if mk.Stop <= mk.Start {
			return 0
		}
		return (mk.Stop - mk.Start + mk.Step - 1) / mk.Step
	case IndexList:
		return len(mk.Idxs)
	}
	return 0
}

// Indices materializes the selected indices of a normalized mask.
func (mk Mask) Indices() []int {
	switch mk.Kind {
	case Range:
		n := mk.Len()
		idxs := make([]int, n)
		for i := 0; i < n; i++ {
			idxs[i] = mk.Start + i*mk.Step
		}
		return idxs
	case IndexList:
		return mk.Idxs
	}
	return nil
}

// IndexOf returns the position of parent index pi within a normalized
// mask, or ErrNotPresent.  For ranges this is explicit integer floor
// division: (pi - Start) / Step, valid only when pi is exactly on the
// stride.
func (mk Mask) IndexOf(pi int) (int, error) {
	switch mk.Kind {
	case Range:
		if pi < mk.Start || pi >= mk.Stop || (pi-mk.Start)%mk.Step != 0 {
			return 0, fmt.Errorf("%w: parent index %d not selected by range [%d,%d):%d",
				ErrNotPresent, pi, mk.Start, mk.Stop, mk.Step)
		}
		return (pi - mk.Start) / mk.Step, nil
	case IndexList:
		k := sort.SearchInts(mk.Idxs, pi)
		if k == len(mk.Idxs) || mk.Idxs[k] != pi {
			return 0, fmt.Errorf("%w: parent index %d not in view mask", ErrNotPresent, pi)
		}
		return k, nil
	}
	return 0, fmt.Errorf("mask is not normalized")
}

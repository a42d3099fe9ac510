// Copyright (c) 2024, The Popnet Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lazy

import (
	"fmt"
	"sort"

	"github.com/nsim/popnet/cells"
)

// ParamSpace maps parameter names to lazy Arrays, all shaped to one target
// size, validated against a cell type's schema.  It is the unit of work for
// Population.Set: user values go in, get shaped and schema-checked, are
// translated to the native representation, and come out as concrete values.
type ParamSpace struct {
	Sch      *cells.Schema `desc:"schema the names are validated against; nil disables validation (used for state variables)"`
	TypeName string        `desc:"cell type name, for schema error messages"`
	Sz       int           `desc:"target shape all arrays are held to"`
	Native   bool          `desc:"whether names/values are in the native representation"`

	names []string // insertion order
	arrs  map[string]*Array
}

// NewParamSpace returns a space validating against the given schema (which
// may be nil to skip validation), with all arrays shaped to size.
func NewParamSpace(sch *cells.Schema, typeName string, size int) *ParamSpace {
	return &ParamSpace{
		Sch:      sch,
		TypeName: typeName,
		Sz:       size,
		arrs:     make(map[string]*Array),
	}
}

// Set adds or replaces the named parameter.  The name must exist in the
// schema (when one is set), and the array must be shapeable to the space's
// size.
func (ps *ParamSpace) Set(name string, ar *Array) error {
	if ps.Sch != nil && !ps.Sch.Has(name) {
		return fmt.Errorf("cell type %s: %w: %q -- valid parameters are %v",
			ps.TypeName, cells.ErrNoSuchParameter, name, ps.Sch.Names())
	}
	if err := ar.SetShape(ps.Sz); err != nil {
		return fmt.Errorf("parameter %q: %w", name, err)
	}
	if _, ok := ps.arrs[name]; !ok {
		ps.names = append(ps.names, name)
	}
	ps.arrs[name] = ar
	return nil
}

// Get returns the named array, or a schema error if absent.
func (ps *ParamSpace) Get(name string) (*Array, error) {
	ar, ok := ps.arrs[name]
	if !ok {
		return nil, fmt.Errorf("cell type %s: %w: %q", ps.TypeName, cells.ErrNoSuchParameter, name)
	}
	return ar, nil
}

// Has returns whether the space holds the named parameter.
func (ps *ParamSpace) Has(name string) bool {
	_, ok := ps.arrs[name]
	return ok
}

// Names returns the parameter names in insertion order.
func (ps *ParamSpace) Names() []string {
	return ps.names
}

// SortedNames returns the parameter names sorted, for order-insensitive
// iteration (e.g. cross-node lock-step operations built from Go maps).
func (ps *ParamSpace) SortedNames() []string {
	nms := make([]string, len(ps.names))
	copy(nms, ps.names)
	sort.Strings(nms)
	return nms
}

// Evaluate forces evaluation of every array, simplifying uniform values to
// scalars when simplify is set.
func (ps *ParamSpace) Evaluate(simplify bool) (map[string]Result, error) {
	out := make(map[string]Result, len(ps.arrs))
	for name, ar := range ps.arrs {
		res, err := ar.Eval(simplify)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", name, err)
		}
		out[name] = res
	}
	return out, nil
}

// Expand grows every array to the given size using the locality mask, per
// the Array.Expand contract.
func (ps *ParamSpace) Expand(n int, mask []bool) error {
	for name, ar := range ps.arrs {
		if err := ar.Expand(n, mask); err != nil {
			return fmt.Errorf("parameter %q: %w", name, err)
		}
	}
	ps.Sz = n
	return nil
}

// ToNative translates the space into the cell type's native representation:
// names become native names and values are converted through each
// parameter's translation rule.  A space without a schema, or one already
// native, is returned unchanged.
func (ps *ParamSpace) ToNative() (*ParamSpace, error) {
	if ps.Sch == nil || ps.Native {
		return ps, nil
	}
	// native names are not valid schema keys, so the native space skips validation
	nps := NewParamSpace(nil, ps.TypeName, ps.Sz)
	nps.Native = true
	for _, name := range ps.names {
		def, err := ps.Sch.Def(name)
		if err != nil {
			return nil, err
		}
		ar := ps.arrs[name]
		nar := ar
		if def.Translated() {
			nar, err = ar.Transform(def.ToNative)
			if err != nil {
				return nil, fmt.Errorf("parameter %q: %w", name, err)
			}
			if err := nar.SetShape(ps.Sz); err != nil {
				return nil, fmt.Errorf("parameter %q: %w", name, err)
			}
		}
		if err := nps.Set(def.NativeName(), nar); err != nil {
			return nil, err
		}
	}
	return nps, nil
}

// Copyright (c) 2024, The Popnet Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cells

import (
	"errors"
	"fmt"
	"sort"
)

// ErrNoSuchParameter is wrapped by all unknown-parameter errors, so callers
// can distinguish schema errors from addressing or locality errors.
var ErrNoSuchParameter = errors.New("no such parameter")

// ParamDef describes one parameter in a cell type's schema, including its
// translation to the native parameter used by the backend engine.
// Translation is affine: native = Scale*user + Offset.  A zero Scale is
// treated as 1 so that zero-valued defs pass values through unchanged.
type ParamDef struct {
	Name    string  `desc:"user-facing parameter name"`
	Default float64 `desc:"default value, in user units"`
	Units   string  `desc:"user-facing units, e.g. mV, nA, ms"`
	Native  string  `desc:"native name in the backend engine -- empty means same as Name"`
	Scale   float64 `desc:"user-to-native multiplier -- 0 is treated as 1"`
	Offset  float64 `desc:"user-to-native additive offset"`
}

// NativeName returns the native parameter name, which is Name itself
// when no translation is defined.
func (pd *ParamDef) NativeName() string {
	if pd.Native == "" {
		return pd.Name
	}
	return pd.Native
}

// ToNative translates a user-units value into native units.
func (pd *ParamDef) ToNative(v float64) float64 {
	sc := pd.Scale
	if sc == 0 {
		sc = 1
	}
	return sc*v + pd.Offset
}

// FromNative translates a native-units value back into user units.
func (pd *ParamDef) FromNative(v float64) float64 {
	sc := pd.Scale
	if sc == 0 {
		sc = 1
	}
	return (v - pd.Offset) / sc
}

// Translated is true if this parameter's values change under translation,
// i.e. it has a non-identity Scale or Offset.  A parameter that is only
// renamed natively is not translated.
func (pd *ParamDef) Translated() bool {
	return pd.Scale != 0 && pd.Scale != 1 || pd.Offset != 0
}

// Schema is an ordered set of parameter definitions for one cell type.
// Order is the declaration order, which determines iteration order
// everywhere parameters are enumerated.
type Schema struct {
	Defs []ParamDef     `desc:"parameter definitions in declaration order"`
	idx  map[string]int // name -> index in Defs
	nat  map[string]int // native name -> index in Defs
}

// NewSchema returns a schema over the given defs.
func NewSchema(defs ...ParamDef) *Schema {
	sc := &Schema{Defs: defs}
	sc.makeIndex()
	return sc
}

func (sc *Schema) makeIndex() {
	sc.idx = make(map[string]int, len(sc.Defs))
	sc.nat = make(map[string]int, len(sc.Defs))
	for i := range sc.Defs {
		sc.idx[sc.Defs[i].Name] = i
		sc.nat[sc.Defs[i].NativeName()] = i
	}
}

// Add appends a parameter definition to the schema.
func (sc *Schema) Add(def ParamDef) {
	sc.Defs = append(sc.Defs, def)
	sc.makeIndex()
}

// Has returns whether the schema defines the named parameter.
func (sc *Schema) Has(name string) bool {
	_, ok := sc.idx[name]
	return ok
}

// Def returns the definition of the named parameter.
// The error wraps ErrNoSuchParameter and lists the valid names.
func (sc *Schema) Def(name string) (*ParamDef, error) {
	i, ok := sc.idx[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q -- valid parameters are %v", ErrNoSuchParameter, name, sc.Names())
	}
	return &sc.Defs[i], nil
}

// DefByNative returns the definition whose native name matches.
func (sc *Schema) DefByNative(native string) (*ParamDef, error) {
	i, ok := sc.nat[native]
	if !ok {
		return nil, fmt.Errorf("%w: no parameter with native name %q", ErrNoSuchParameter, native)
	}
	return &sc.Defs[i], nil
}

// Names returns all user-facing parameter names, sorted for stable
// error messages.
func (sc *Schema) Names() []string {
	nms := make([]string, len(sc.Defs))
	for i := range sc.Defs {
		nms[i] = sc.Defs[i].Name
	}
	sort.Strings(nms)
	return nms
}

// OrderedNames returns the user-facing names in declaration order.
func (sc *Schema) OrderedNames() []string {
	nms := make([]string, len(sc.Defs))
	for i := range sc.Defs {
		nms[i] = sc.Defs[i].Name
	}
	return nms
}

// Defaults returns a name -> default value map in user units.
func (sc *Schema) Defaults() map[string]float64 {
	dm := make(map[string]float64, len(sc.Defs))
	for i := range sc.Defs {
		dm[sc.Defs[i].Name] = sc.Defs[i].Default
	}
	return dm
}

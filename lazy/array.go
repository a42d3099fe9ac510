// Copyright (c) 2024, The Popnet Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package lazy implements deferred-evaluation parameter arrays.  An Array
represents one parameter's value across a set of cells without committing to
concrete storage until values are actually required.  Four source kinds are
supported: a single scalar broadcast to the whole shape, an explicit
per-index sequence, a seeded random distribution drawn once per index in a
fixed order, and a pure index -> value function.

The evaluation contract that everything else depends on: the sequence of
random draws is defined over the full global index range and is independent
of how many compute nodes participate, so results are reproducible under a
fixed seed regardless of node count.  Each node evaluates the full range and
retains only its local indices.
*/
package lazy

import (
	"errors"
	"fmt"

	"github.com/goki/ki/kit"
)

var (
	// ErrShapeMismatch is wrapped by all errors where an explicit sequence
	// does not match the target shape.
	ErrShapeMismatch = errors.New("sequence length does not match target shape")

	// ErrUnshaped is returned when evaluation is requested before the
	// array has been given a target shape.
	ErrUnshaped = errors.New("lazy array has no target shape")

	// ErrIndexRange is wrapped by all per-index access errors.
	ErrIndexRange = errors.New("index out of range")
)

// SourceKind is the value-source variant of an Array.
type SourceKind int

var KiT_SourceKind = kit.Enums.AddEnum(SourceKindN, kit.NotBitFlag, nil)

func (sk SourceKind) MarshalJSON() ([]byte, error)  { return kit.EnumMarshalJSON(sk) }
func (sk *SourceKind) UnmarshalJSON(b []byte) error { return kit.EnumUnmarshalJSON(sk, b) }

const (
	// ScalarSource broadcasts one value to every index.
	ScalarSource SourceKind = iota

	// SequenceSource holds one explicit value per index.
	SequenceSource

	// RandomSource draws one value per index from a seeded distribution.
	RandomSource

	// FuncSource computes each value from its index.
	FuncSource

	SourceKindN
)

func (sk SourceKind) String() string {
	switch sk {
	case ScalarSource:
		return "Scalar"
	case SequenceSource:
		return "Sequence"
	case RandomSource:
		return "Random"
	case FuncSource:
		return "Func"
	}
	return fmt.Sprintf("SourceKind(%d)", int(sk))
}

// Array is a deferred-evaluation representation of one parameter's per-cell
// values.  Exactly one of the source fields is meaningful, selected by Kind.
// Arrays are created unshaped (except sequences, which carry their length)
// and are given their target shape by the ParamSpace or container they are
// added to.
type Array struct {
	Kind   SourceKind          `desc:"which source variant this array carries"`
	Val    float64             `desc:"broadcast value for ScalarSource"`
	Seq    []float64           `desc:"explicit per-index values for SequenceSource"`
	Fun    func(i int) float64 `json:"-" desc:"index to value function for FuncSource"`
	Rnd    *RandomSpec         `desc:"seeded distribution for RandomSource"`
	Sz     int                 `desc:"target shape (number of indices); 0 until shaped, except for sequences"`
	shaped bool
	vals   []float64 // committed values, nil until first evaluation or per-index write
}

// Scalar returns an array broadcasting v to every index.
func Scalar(v float64) *Array {
	return &Array{Kind: ScalarSource, Val: v}
}

// Sequence returns an array of the given explicit values.  Its shape is
// fixed to len(vals).
func Sequence(vals ...float64) *Array {
	return &Array{Kind: SequenceSource, Seq: vals, Sz: len(vals), shaped: true}
}

// Func returns an array computing each value from its index.
func Func(f func(i int) float64) *Array {
	return &Array{Kind: FuncSource, Fun: f}
}

// Random returns an array drawing one value per index from the given
// seeded distribution.
func Random(rs *RandomSpec) *Array {
	return &Array{Kind: RandomSource, Rnd: rs}
}

// Clone returns an unevaluated copy of the array's source, dropping any
// committed values and (except for sequences, whose length is their shape)
// any target shape.  Use it to hand the same value specification to
// several containers, each of which shapes and evaluates its own copy.
func (ar *Array) Clone() *Array {
	na := &Array{Kind: ar.Kind, Val: ar.Val, Fun: ar.Fun}
	if ar.Seq != nil {
		na.Seq = make([]float64, len(ar.Seq))
		copy(na.Seq, ar.Seq)
	}
	if ar.Rnd != nil {
		rs := *ar.Rnd
		na.Rnd = &rs
	}
	if ar.Kind == SequenceSource {
		na.Sz, na.shaped = len(na.Seq), true
	}
	return na
}

// SetShape sets the target shape to n indices.  For sequences the length
// must match; for an already-shaped array the shape cannot change.
func (ar *Array) SetShape(n int) error {
	if ar.shaped {
		if ar.Sz != n {
			return fmt.Errorf("%w: have %d, want %d", ErrShapeMismatch, ar.Sz, n)
		}
		return nil
	}
	ar.Sz = n
	ar.shaped = true
	return nil
}

// Shaped returns whether the array has been given a target shape.
func (ar *Array) Shaped() bool { return ar.shaped }

// generate produces n concrete values per the source kind, without
// touching committed storage.  Random sources consume exactly n draws in
// index order from a fresh seeded sampler.
func (ar *Array) generate(n int) ([]float64, error) {
	vals := make([]float64, n)
	switch ar.Kind {
	case ScalarSource:
		for i := range vals {
			vals[i] = ar.Val
		}
	case SequenceSource:
		if len(ar.Seq) != n {
			return nil, fmt.Errorf("%w: have %d, want %d", ErrShapeMismatch, len(ar.Seq), n)
		}
		copy(vals, ar.Seq)
	case FuncSource:
		for i := range vals {
			vals[i] = ar.Fun(i)
		}
	case RandomSource:
		smp := ar.Rnd.Sampler()
		for i := range vals {
			vals[i] = smp.Rand()
		}
	default:
		return nil, fmt.Errorf("unknown source kind %v", ar.Kind)
	}
	return vals, nil
}

// EvalAll forces evaluation over the full shape and returns the committed
// values.  The first call materializes and caches; subsequent calls return
// the same values (evaluation is idempotent).  The returned slice is the
// committed storage itself -- callers must not retain and mutate it.
func (ar *Array) EvalAll() ([]float64, error) {
	if ar.vals != nil {
		return ar.vals, nil
	}
	if !ar.shaped {
		return nil, ErrUnshaped
	}
	vals, err := ar.generate(ar.Sz)
	if err != nil {
		return nil, err
	}
	ar.vals = vals
	return ar.vals, nil
}

// EvalMasked evaluates over the full shape and returns only the values at
// mask-true indices.  The full draw sequence is always consumed, so the
// returned values are independent of how the mask partitions the shape.
func (ar *Array) EvalMasked(mask []bool) ([]float64, error) {
	if !ar.shaped {
		return nil, ErrUnshaped
	}
	if len(mask) != ar.Sz {
		return nil, fmt.Errorf("%w: mask length %d, shape %d", ErrShapeMismatch, len(mask), ar.Sz)
	}
	all, err := ar.EvalAll()
	if err != nil {
		return nil, err
	}
	var out []float64
	for i, m := range mask {
		if m {
			out = append(out, all[i])
		}
	}
	return out, nil
}

// Value returns the committed value at index i, evaluating first if needed.
func (ar *Array) Value(i int) (float64, error) {
	all, err := ar.EvalAll()
	if err != nil {
		return 0, err
	}
	if i < 0 || i >= len(all) {
		return 0, fmt.Errorf("%w: %d not in [0,%d)", ErrIndexRange, i, len(all))
	}
	return all[i], nil
}

// SetValue overwrites the committed value at index i, evaluating first if
// needed so that all other indices retain their source-derived values.
func (ar *Array) SetValue(i int, v float64) error {
	all, err := ar.EvalAll()
	if err != nil {
		return err
	}
	if i < 0 || i >= len(all) {
		return fmt.Errorf("%w: %d not in [0,%d)", ErrIndexRange, i, len(all))
	}
	all[i] = v
	return nil
}

// Expand grows the array to n indices.  mask must have length n with
// exactly the current shape's count of true entries: true positions receive
// the already-committed values, in order, and false positions receive newly
// generated ones.  The generation pass covers the full new shape, so random
// sources consume exactly n draws regardless of the mask.
func (ar *Array) Expand(n int, mask []bool) error {
	if !ar.shaped {
		return ErrUnshaped
	}
	if len(mask) != n {
		return fmt.Errorf("%w: mask length %d, new shape %d", ErrShapeMismatch, len(mask), n)
	}
	nold := 0
	for _, m := range mask {
		if m {
			nold++
		}
	}
	if nold != ar.Sz {
		return fmt.Errorf("%w: mask has %d committed positions, current shape is %d", ErrShapeMismatch, nold, ar.Sz)
	}
	old, err := ar.EvalAll()
	if err != nil {
		return err
	}
	if ar.Kind == SequenceSource {
		// sequences have no generator for the new positions
		return fmt.Errorf("%w: cannot expand an explicit sequence from %d to %d", ErrShapeMismatch, ar.Sz, n)
	}
	vals, err := ar.generate(n)
	if err != nil {
		return err
	}
	oi := 0
	for i, m := range mask {
		if m {
			vals[i] = old[oi]
			oi++
		}
	}
	ar.Sz = n
	ar.vals = vals
	return nil
}

// Transform returns a new array with f applied to every value.  Scalar,
// sequence and function sources stay lazy; random sources are materialized
// first (in full global order, preserving the draw contract) and the result
// is an explicit sequence.
func (ar *Array) Transform(f func(v float64) float64) (*Array, error) {
	switch ar.Kind {
	case ScalarSource:
		na := Scalar(f(ar.Val))
		na.Sz, na.shaped = ar.Sz, ar.shaped
		return na, nil
	case SequenceSource:
		seq := make([]float64, len(ar.Seq))
		for i, v := range ar.Seq {
			seq[i] = f(v)
		}
		return Sequence(seq...), nil
	case FuncSource:
		g := ar.Fun
		na := Func(func(i int) float64 { return f(g(i)) })
		na.Sz, na.shaped = ar.Sz, ar.shaped
		return na, nil
	case RandomSource:
		all, err := ar.EvalAll()
		if err != nil {
			return nil, err
		}
		seq := make([]float64, len(all))
		for i, v := range all {
			seq[i] = f(v)
		}
		return Sequence(seq...), nil
	}
	return nil, fmt.Errorf("unknown source kind %v", ar.Kind)
}

// Eval evaluates the array and simplifies to a scalar result when all
// values are identical and simplify is set.
func (ar *Array) Eval(simplify bool) (Result, error) {
	all, err := ar.EvalAll()
	if err != nil {
		return Result{}, err
	}
	if simplify {
		return Simplify(all), nil
	}
	return Result{Values: all}, nil
}

// Result is an evaluated parameter: either a per-cell value slice, or a
// single scalar when the values were uniform and simplification was
// requested.
type Result struct {
	Uniform bool      `desc:"all values were identical and collapsed to Scalar"`
	Scalar  float64   `desc:"the uniform value, valid when Uniform"`
	Values  []float64 `desc:"per-cell values, valid when not Uniform"`
}

// Slice returns the result as a per-cell slice of length n, broadcasting
// the scalar when uniform.
func (r Result) Slice(n int) []float64 {
	if !r.Uniform {
		return r.Values
	}
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = r.Scalar
	}
	return vals
}

// Simplify collapses a value slice to a scalar Result when every element
// is identical.  An empty slice stays an (empty) slice result.
func Simplify(vals []float64) Result {
	if len(vals) == 0 {
		return Result{Values: vals}
	}
	v0 := vals[0]
	for _, v := range vals[1:] {
		if v != v0 {
			return Result{Values: vals}
		}
	}
	return Result{Uniform: true, Scalar: v0}
}

// Copyright (c) 2024, The Popnet Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lazy

import (
	"errors"
	"testing"

	"github.com/nsim/popnet/cells"
	"github.com/stretchr/testify/require"
)

func TestParamSpaceSchemaCheck(t *testing.T) {
	ct := cells.NewCondExp()
	ps := NewParamSpace(ct.Schema(), ct.Name(), 4)

	require.NoError(t, ps.Set("tau_m", Scalar(15)))
	err := ps.Set("tau_x", Scalar(1))
	require.True(t, errors.Is(err, cells.ErrNoSuchParameter))

	err = ps.Set("v_rest", Sequence(-65, -64)) // wrong length
	require.True(t, errors.Is(err, ErrShapeMismatch))

	require.True(t, ps.Has("tau_m"))
	require.Equal(t, []string{"tau_m"}, ps.Names())
}

func TestParamSpaceToNative(t *testing.T) {
	ct := cells.NewCondExp()
	ps := NewParamSpace(ct.Schema(), ct.Name(), 3)
	require.NoError(t, ps.Set("cm", Scalar(0.9)))
	require.NoError(t, ps.Set("tau_m", Sequence(10, 20, 30)))

	nps, err := ps.ToNative()
	require.NoError(t, err)
	require.True(t, nps.Native)

	cm, err := nps.Get("C_m")
	require.NoError(t, err)
	vals, err := cm.EvalAll()
	require.NoError(t, err)
	require.InDelta(t, 900.0, vals[0], 1e-12)

	tm, err := nps.Get("tau_m")
	require.NoError(t, err)
	vals, err = tm.EvalAll()
	require.NoError(t, err)
	require.Equal(t, []float64{10, 20, 30}, vals)

	_, err = nps.Get("cm") // user name is gone in the native space
	require.Error(t, err)
}

func TestParamSpaceEvaluate(t *testing.T) {
	ps := NewParamSpace(nil, "", 3)
	require.NoError(t, ps.Set("a", Scalar(2)))
	require.NoError(t, ps.Set("b", Func(func(i int) float64 { return float64(i) })))

	res, err := ps.Evaluate(true)
	require.NoError(t, err)
	require.True(t, res["a"].Uniform)
	require.Equal(t, []float64{0, 1, 2}, res["b"].Values)
}

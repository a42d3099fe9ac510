// Copyright (c) 2024, The Popnet Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lazy

import (
	"github.com/emer/emergent/erand"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// RandomSpec describes a seeded random distribution for a RandomSource
// array.  The distribution itself is specified with the standard
// erand.RndParams descriptor; Seed fixes the draw stream so that every
// compute node generates the identical global sequence.
//
// RndParams fields map onto the underlying samplers as follows:
//
//	Mean:     constant Mean (no randomness)
//	Uniform:  uniform over [Mean-Var, Mean+Var]
//	Gaussian: normal with mean Mean, sigma Var
//	Poisson:  Poisson with lambda Mean
//	Gamma:    gamma with shape Par, rate Par/Mean (mean = Mean)
//	Beta:     beta with alpha Par, beta Var
type RandomSpec struct {
	erand.RndParams `desc:"distribution type and parameters"`
	Seed            uint64 `desc:"seed for the draw stream -- the same seed must be used on every node"`
}

// Uniform returns a spec for a uniform distribution over [min, max].
func Uniform(min, max float64, seed uint64) *RandomSpec {
	rs := &RandomSpec{Seed: seed}
	rs.Dist = erand.Uniform
	rs.Mean = 0.5 * (min + max)
	rs.Var = 0.5 * (max - min)
	return rs
}

// Normal returns a spec for a normal distribution with the given mean and
// standard deviation.
func Normal(mean, sigma float64, seed uint64) *RandomSpec {
	rs := &RandomSpec{Seed: seed}
	rs.Dist = erand.Gaussian
	rs.Mean = mean
	rs.Var = sigma
	return rs
}

// Sampler returns a freshly seeded sampler for this distribution.  Each call starts
// an identical stream, which is what makes repeated evaluation and
// cross-node evaluation deterministic.
func (rs *RandomSpec) Sampler() distuv.Rander {
	src := rand.NewSource(rs.Seed)
	switch rs.Dist {
	case erand.Uniform:
		return distuv.Uniform{Min: rs.Mean - rs.Var, Max: rs.Mean + rs.Var, Src: src}
	case erand.Gaussian:
		return distuv.Normal{Mu: rs.Mean, Sigma: rs.Var, Src: src}
	case erand.Poisson:
		return distuv.Poisson{Lambda: rs.Mean, Src: src}
	case erand.Gamma:
		return distuv.Gamma{Alpha: rs.Par, Beta: rs.Par / rs.Mean, Src: src}
	case erand.Beta:
		return distuv.Beta{Alpha: rs.Par, Beta: rs.Var, Src: src}
	}
	// erand.Mean and anything unrecognized: constant
	return constRander(rs.Mean)
}

// constRander is a degenerate sampler returning a fixed value.
type constRander float64

func (cr constRander) Rand() float64 { return float64(cr) }

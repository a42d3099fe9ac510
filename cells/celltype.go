// Copyright (c) 2024, The Popnet Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package cells defines the capability descriptors for cell types: the
parameter schema with defaults, units and native-name translation, the set
of recordable state variables, and the conductance / current and
injectability nature of each type.  The descriptors are consumed by the pop
package, which dispatches all parameter access through the schema instead of
resolving arbitrary attribute names.
*/
package cells

// Type is the capability descriptor for one cell type.  A Population holds
// exactly one Type, which governs which parameters can be set, which state
// variables can be recorded, and how user-facing values translate into the
// engine's native representation.
type Type interface {
	// Name returns the type name, used in schema error messages.
	Name() string

	// Schema returns the parameter schema.
	Schema() *Schema

	// Recordable returns the names of state variables that can be recorded.
	Recordable() []string

	// CanRecord returns whether the named variable can be recorded.
	CanRecord(variable string) bool

	// DefaultInitialValues returns default initial values for the
	// state variables, keyed by variable name.
	DefaultInitialValues() map[string]float64

	// ConductanceBased is true if the post-synaptic response is modelled
	// as a change in conductance, false if a change in current.
	ConductanceBased() bool

	// Injectable is true if current can be injected into this cell type.
	Injectable() bool

	// ReceptorTypes returns the post-synaptic receptor type names.
	ReceptorTypes() []string
}

// Base is a concrete Type assembled from plain data, suitable for most
// point-neuron and stimulus-source descriptors.
type Base struct {
	Nm        string             `desc:"name of the cell type"`
	Sch       *Schema            `desc:"parameter schema"`
	Rec       []string           `desc:"recordable state variable names"`
	InitVals  map[string]float64 `desc:"default initial values for state variables"`
	CondBased bool               `desc:"conductance-based (vs current-based) synapses"`
	Inject    bool               `desc:"whether current can be injected"`
	Receptors []string           `desc:"post-synaptic receptor types"`
}

func (bt *Base) Name() string    { return bt.Nm }
func (bt *Base) Schema() *Schema { return bt.Sch }

func (bt *Base) Recordable() []string { return bt.Rec }

func (bt *Base) CanRecord(variable string) bool {
	for _, v := range bt.Rec {
		if v == variable {
			return true
		}
	}
	return false
}

func (bt *Base) DefaultInitialValues() map[string]float64 { return bt.InitVals }
func (bt *Base) ConductanceBased() bool                   { return bt.CondBased }
func (bt *Base) Injectable() bool                         { return bt.Inject }
func (bt *Base) ReceptorTypes() []string                  { return bt.Receptors }

// NewCondExp returns the descriptor for a conductance-based exponential-
// synapse integrate-and-fire point neuron.  Membrane time constant and
// capacitance translate to the native leak conductance / picofarad
// representation used by typical engines.
func NewCondExp() *Base {
	return &Base{
		Nm: "CondExp",
		Sch: NewSchema(
			ParamDef{Name: "v_rest", Default: -65.0, Units: "mV", Native: "E_L"},
			ParamDef{Name: "v_reset", Default: -65.0, Units: "mV", Native: "V_reset"},
			ParamDef{Name: "v_thresh", Default: -50.0, Units: "mV", Native: "V_th"},
			ParamDef{Name: "cm", Default: 1.0, Units: "nF", Native: "C_m", Scale: 1000}, // nF -> pF
			ParamDef{Name: "tau_m", Default: 20.0, Units: "ms", Native: "tau_m"},
			ParamDef{Name: "tau_refrac", Default: 0.1, Units: "ms", Native: "t_ref"},
			ParamDef{Name: "tau_syn_E", Default: 5.0, Units: "ms", Native: "tau_syn_ex"},
			ParamDef{Name: "tau_syn_I", Default: 5.0, Units: "ms", Native: "tau_syn_in"},
			ParamDef{Name: "i_offset", Default: 0.0, Units: "nA", Native: "I_e", Scale: 1000}, // nA -> pA
			ParamDef{Name: "e_rev_E", Default: 0.0, Units: "mV", Native: "E_ex"},
			ParamDef{Name: "e_rev_I", Default: -70.0, Units: "mV", Native: "E_in"},
		),
		Rec:       []string{"spikes", "v", "gsyn_exc", "gsyn_inh"},
		InitVals:  map[string]float64{"v": -65.0, "gsyn_exc": 0.0, "gsyn_inh": 0.0},
		CondBased: true,
		Inject:    true,
		Receptors: []string{"excitatory", "inhibitory"},
	}
}

// NewCurrExp returns the descriptor for the current-based variant of the
// exponential-synapse integrate-and-fire neuron.
func NewCurrExp() *Base {
	ct := NewCondExp()
	ct.Nm = "CurrExp"
	ct.CondBased = false
	sch := NewSchema()
	for _, def := range ct.Sch.Defs {
		if def.Name == "e_rev_E" || def.Name == "e_rev_I" {
			continue
		}
		sch.Add(def)
	}
	ct.Sch = sch
	return ct
}

// NewSpikeSource returns the descriptor for a Poisson spike source: a
// stimulus generator with no membrane state, which therefore cannot record
// analog variables and cannot receive injected current.
func NewSpikeSource() *Base {
	return &Base{
		Nm: "SpikeSource",
		Sch: NewSchema(
			ParamDef{Name: "rate", Default: 1.0, Units: "Hz"},
			ParamDef{Name: "start", Default: 0.0, Units: "ms"},
			ParamDef{Name: "duration", Default: 1e10, Units: "ms"},
		),
		Rec:       []string{"spikes"},
		InitVals:  map[string]float64{},
		CondBased: false,
		Inject:    false,
		Receptors: []string{},
	}
}

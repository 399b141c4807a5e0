// Package params holds the named tunable scalars of the search: exploration
// constants, time-management weights and root-policy temperatures. Every value
// has a default and a legal range; the UCI layer exposes each one as an
// integer spin option scaled by 100.
package params

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// Params is the full set of tunable scalars. Fields are read directly by the
// search hot path; by-name access goes through the table below.
type Params struct {
	Cpuct            float32
	RootCpuct        float32
	CpuctVisitsScale float32
	CpuctVarWeight   float32
	CpuctVarScale    float32

	RootPST float32

	GiniBase         float32
	GiniLnMultiplier float32
	GiniMin          float32

	RootNoiseFrac  float32
	RootNoiseAlpha float32

	TmMtg               float32
	TmInstabilityWeight float32
	TmFallingWeight     float32
}

// Spin describes one parameter as the UCI option surface sees it: the value
// multiplied by 100 and rounded, with matching bounds.
type Spin struct {
	Name             string
	Default, Min, Max int
}

type entry struct {
	name     string
	min, max float32
	get      func(*Params) *float32
}

var table = []entry{
	{"cpuct", 0.1, 5.0, func(p *Params) *float32 { return &p.Cpuct }},
	{"root_cpuct", 0.1, 5.0, func(p *Params) *float32 { return &p.RootCpuct }},
	{"cpuct_visits_scale", 1.0, 512.0, func(p *Params) *float32 { return &p.CpuctVisitsScale }},
	{"cpuct_var_weight", 0.0, 2.0, func(p *Params) *float32 { return &p.CpuctVarWeight }},
	{"cpuct_var_scale", 0.01, 2.0, func(p *Params) *float32 { return &p.CpuctVarScale }},
	{"root_pst", 0.1, 10.0, func(p *Params) *float32 { return &p.RootPST }},
	{"gini_base", 0.0, 4.0, func(p *Params) *float32 { return &p.GiniBase }},
	{"gini_ln_multiplier", 0.0, 4.0, func(p *Params) *float32 { return &p.GiniLnMultiplier }},
	{"gini_min", 0.1, 4.0, func(p *Params) *float32 { return &p.GiniMin }},
	{"root_noise_frac", 0.0, 1.0, func(p *Params) *float32 { return &p.RootNoiseFrac }},
	{"root_noise_alpha", 0.01, 10.0, func(p *Params) *float32 { return &p.RootNoiseAlpha }},
	{"tm_mtg", 1.0, 120.0, func(p *Params) *float32 { return &p.TmMtg }},
	{"tm_instability_weight", 0.0, 2.0, func(p *Params) *float32 { return &p.TmInstabilityWeight }},
	{"tm_falling_weight", 0.0, 8.0, func(p *Params) *float32 { return &p.TmFallingWeight }},
}

// Defaults returns a Params with every scalar at its default value.
func Defaults() *Params {
	return &Params{
		Cpuct:            1.41,
		RootCpuct:        1.41,
		CpuctVisitsScale: 64.0,
		CpuctVarWeight:   0.85,
		CpuctVarScale:    0.25,

		RootPST: 1.75,

		GiniBase:         0.46,
		GiniLnMultiplier: 0.38,
		GiniMin:          1.80,

		RootNoiseFrac:  0.0,
		RootNoiseAlpha: 0.3,

		TmMtg:               30.0,
		TmInstabilityWeight: 0.25,
		TmFallingWeight:     1.0,
	}
}

// Set assigns a parameter by name, rejecting unknown names and out-of-range
// values.
func (p *Params) Set(name string, val float32) error {
	for i := range table {
		e := &table[i]
		if e.name != name {
			continue
		}
		if val < e.min || val > e.max {
			return errors.Errorf("parameter %s: value %v outside [%v, %v]", name, val, e.min, e.max)
		}
		*e.get(p) = val
		return nil
	}
	return errors.Errorf("unknown parameter %q", name)
}

// SetSpin assigns a parameter from its UCI spin representation (value x100).
func (p *Params) SetSpin(name string, val int) error {
	return p.Set(name, float32(val)/100.0)
}

// Get returns a parameter by name.
func (p *Params) Get(name string) (float32, error) {
	for i := range table {
		if table[i].name == name {
			return *table[i].get(p), nil
		}
	}
	return 0, errors.Errorf("unknown parameter %q", name)
}

// Spins lists every parameter in option-surface form, in declaration order.
func (p *Params) Spins() []Spin {
	spins := make([]Spin, 0, len(table))
	for i := range table {
		e := &table[i]
		spins = append(spins, Spin{
			Name:    e.name,
			Default: int(*e.get(p)*100.0 + 0.5),
			Min:     int(e.min * 100.0),
			Max:     int(e.max * 100.0),
		})
	}
	return spins
}

// Validate checks every scalar against its range and reports all violations
// at once.
func (p *Params) Validate() error {
	var result *multierror.Error
	for i := range table {
		e := &table[i]
		if v := *e.get(p); v < e.min || v > e.max {
			result = multierror.Append(result,
				errors.Errorf("parameter %s: value %v outside [%v, %v]", e.name, v, e.min, e.max))
		}
	}
	return result.ErrorOrNil()
}

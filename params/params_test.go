package params

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	require.NoError(t, Defaults().Validate())
}

func TestSetByName(t *testing.T) {
	p := Defaults()
	require.NoError(t, p.Set("cpuct", 2.0))
	assert.InDelta(t, 2.0, p.Cpuct, 1e-6)

	v, err := p.Get("cpuct")
	require.NoError(t, err)
	assert.InDelta(t, 2.0, v, 1e-6)
}

func TestSetUnknownName(t *testing.T) {
	p := Defaults()
	assert.Error(t, p.Set("does_not_exist", 1.0))
	_, err := p.Get("does_not_exist")
	assert.Error(t, err)
}

func TestSetOutOfRange(t *testing.T) {
	p := Defaults()
	assert.Error(t, p.Set("cpuct", 100.0))
	assert.InDelta(t, Defaults().Cpuct, p.Cpuct, 1e-6)
}

func TestSetSpinScaling(t *testing.T) {
	p := Defaults()
	require.NoError(t, p.SetSpin("root_pst", 350))
	assert.InDelta(t, 3.5, p.RootPST, 1e-6)
}

func TestSpinsRoundTrip(t *testing.T) {
	p := Defaults()
	spins := p.Spins()
	require.NotEmpty(t, spins)
	for _, s := range spins {
		assert.GreaterOrEqual(t, s.Default, s.Min, s.Name)
		assert.LessOrEqual(t, s.Default, s.Max, s.Name)
	}
}

func TestValidateAggregatesErrors(t *testing.T) {
	p := Defaults()
	p.Cpuct = -1
	p.RootPST = 1000
	err := p.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cpuct")
	assert.Contains(t, err.Error(), "root_pst")
}

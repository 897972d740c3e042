package target

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saschahauer/barebox-bringup/internal/driver"
)

type stubPower struct{}

func (stubPower) On() error    { return nil }
func (stubPower) Off() error   { return nil }
func (stubPower) Cycle() error { return nil }

// countingConsole tracks activation balance.
type countingConsole struct {
	activations   int
	deactivations int
	deactivateErr error
}

func (c *countingConsole) Read(p []byte, timeout time.Duration) (int, error) {
	return 0, driver.ErrTimeout
}
func (c *countingConsole) Write(p []byte) (int, error) { return len(p), nil }
func (c *countingConsole) Alive() bool                 { return true }
func (c *countingConsole) Activate() error             { c.activations++; return nil }
func (c *countingConsole) Deactivate() error {
	c.deactivations++
	return c.deactivateErr
}

type countingLoader struct {
	activations   int
	deactivations int
}

func (l *countingLoader) Load(path string) error { return nil }
func (l *countingLoader) Activate() error        { l.activations++; return nil }
func (l *countingLoader) Deactivate() error      { l.deactivations++; return nil }

func TestBindAndLookup(t *testing.T) {
	tgt := New("main", nil)
	tgt.Bind(Power, stubPower{})
	tgt.Bind(Console, &countingConsole{})

	assert.True(t, tgt.Has(Power))
	assert.False(t, tgt.Has(Loader))
	assert.Equal(t, "main", tgt.Role())

	p, err := tgt.Power()
	require.NoError(t, err)
	require.NoError(t, p.Cycle())

	_, err = tgt.Loader()
	require.ErrorIs(t, err, ErrCapabilityNotBound)
}

func TestLookupTypeMismatch(t *testing.T) {
	tgt := New("main", nil)
	tgt.Bind(Console, stubPower{}) // wrong interface for the capability

	_, err := tgt.Console()
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCapabilityNotBound)
}

func TestActivateIdempotent(t *testing.T) {
	con := &countingConsole{}
	tgt := New("main", nil)
	tgt.Bind(Console, con)

	require.NoError(t, tgt.Activate(Console))
	require.NoError(t, tgt.Activate(Console))
	require.NoError(t, tgt.Activate(Console))
	assert.Equal(t, 1, con.activations)
	assert.True(t, tgt.Active(Console))
}

func TestDeactivateIdempotent(t *testing.T) {
	con := &countingConsole{}
	tgt := New("main", nil)
	tgt.Bind(Console, con)

	// Never activated: nothing to do.
	require.NoError(t, tgt.Deactivate(Console))
	assert.Zero(t, con.deactivations)

	require.NoError(t, tgt.Activate(Console))
	require.NoError(t, tgt.Deactivate(Console))
	require.NoError(t, tgt.Deactivate(Console))
	assert.Equal(t, 1, con.deactivations)
	assert.False(t, tgt.Active(Console))
}

func TestActivateUnboundFails(t *testing.T) {
	tgt := New("main", nil)
	require.ErrorIs(t, tgt.Activate(Power), ErrCapabilityNotBound)
}

func TestActivateNonActivator(t *testing.T) {
	// Drivers without activation hooks are tracked all the same.
	tgt := New("main", nil)
	tgt.Bind(Power, stubPower{})
	require.NoError(t, tgt.Activate(Power))
	assert.True(t, tgt.Active(Power))
	require.NoError(t, tgt.Deactivate(Power))
	assert.False(t, tgt.Active(Power))
}

func TestDeactivateAllReverseOrder(t *testing.T) {
	var order []string
	con := &countingConsole{}
	tgt := New("main", nil)
	tgt.Bind(Console, con)
	tgt.Bind(Loader, &orderedActivator{name: "loader", order: &order})
	tgt.Bind(SDMux, &orderedActivator{name: "sdmux", order: &order})

	require.NoError(t, tgt.Activate(Loader))
	require.NoError(t, tgt.Activate(Console))
	require.NoError(t, tgt.Activate(SDMux))

	require.Empty(t, tgt.DeactivateAll())
	// Reverse activation order: sdmux was last in, goes out first.
	assert.Equal(t, []string{"sdmux", "loader"}, order)
	assert.Equal(t, 1, con.deactivations)
	assert.False(t, tgt.Active(Console))
}

type orderedActivator struct {
	name  string
	order *[]string
}

func (a *orderedActivator) Activate() error { return nil }
func (a *orderedActivator) Deactivate() error {
	*a.order = append(*a.order, a.name)
	return nil
}

func TestDeactivateAllCollectsErrors(t *testing.T) {
	con := &countingConsole{deactivateErr: errors.New("tty busy")}
	ldr := &countingLoader{}
	tgt := New("main", nil)
	tgt.Bind(Console, con)
	tgt.Bind(Loader, ldr)

	require.NoError(t, tgt.Activate(Console))
	require.NoError(t, tgt.Activate(Loader))

	errs := tgt.DeactivateAll()
	// The console failure does not keep the loader active.
	assert.Len(t, errs, 1)
	assert.Equal(t, 1, ldr.deactivations)
	assert.False(t, tgt.Active(Loader))
}

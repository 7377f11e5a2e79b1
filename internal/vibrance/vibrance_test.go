package vibrance

import (
	"testing"

	"github.com/bryanchriswhite/FocusVibrance/internal/display"
	"github.com/bryanchriswhite/FocusVibrance/internal/display/displaytest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultMonitor() *display.Monitor {
	return &display.Monitor{Min: -1024, Max: 1023, RangeValid: true}
}

func TestConversionScenarios(t *testing.T) {
	mon := defaultMonitor()

	assert.Equal(t, -1, PercentageToValue(50, mon), "midpoint rounds toward the lower bound")
	assert.Equal(t, 50, ValueToPercentage(0, mon))
	assert.Equal(t, 613, PercentageToValue(80, mon))
}

func TestConversionEndpoints(t *testing.T) {
	monitors := []*display.Monitor{
		defaultMonitor(),
		{Min: 0, Max: 63, RangeValid: true},
		{Min: -50, Max: 50, RangeValid: true},
	}

	for _, mon := range monitors {
		assert.Equal(t, 0, ValueToPercentage(mon.Min, mon))
		assert.Equal(t, 100, ValueToPercentage(mon.Max, mon))
		assert.Equal(t, mon.Min, PercentageToValue(0, mon))
		assert.Equal(t, mon.Max, PercentageToValue(100, mon))
	}
}

func TestConversionRoundTrip(t *testing.T) {
	mon := defaultMonitor()
	step := (mon.Max-mon.Min)/100 + 1

	for v := mon.Min; v <= mon.Max; v++ {
		back := PercentageToValue(ValueToPercentage(v, mon), mon)
		require.InDelta(t, v, back, float64(step), "value %d", v)
	}

	for p := 0; p <= 100; p++ {
		back := ValueToPercentage(PercentageToValue(p, mon), mon)
		require.InDelta(t, p, back, 1, "percent %d", p)
	}
}

func TestConversionWithoutMonitorUsesDefaultRange(t *testing.T) {
	assert.Equal(t, PercentageToValue(80, defaultMonitor()), PercentageToValue(80, nil))
	assert.Equal(t, PercentageToValue(30, defaultMonitor()), PercentageToValue(30, &display.Monitor{}))
	assert.Equal(t, 0, ValueToPercentage(5, &display.Monitor{Min: 5, Max: 5, RangeValid: true}))
}

func newController(t *testing.T, opts Options, displays ...displaytest.Display) (*Controller, *displaytest.Server) {
	t.Helper()
	srv := displaytest.New(displays...)
	reg, err := srv.Registry()
	require.NoError(t, err)
	return NewController(reg, opts), srv
}

func TestSetOutOfRangeIsNoop(t *testing.T) {
	c, srv := newController(t, Options{}, displaytest.Display{ID: 1, Level: 100})

	for _, v := range []int{-1025, 1024, 5000} {
		assert.False(t, c.Set(0, v, false))
	}

	assert.Empty(t, srv.Writes())
	assert.Zero(t, srv.Flushes())

	got, err := c.Get(0)
	require.NoError(t, err)
	assert.Equal(t, 100, got)
}

func TestSetBoundsAreInclusive(t *testing.T) {
	c, srv := newController(t, Options{}, displaytest.Display{ID: 1})

	assert.True(t, c.Set(0, -1024, false))
	assert.True(t, c.Set(0, 1023, false))
	assert.Equal(t, []displaytest.Write{{DisplayID: 1, Value: -1024}, {DisplayID: 1, Value: 1023}}, srv.Writes())

	mon, _ := c.Registry().Monitor(0)
	assert.Equal(t, 1023, mon.Level)
}

func TestSetSingleMonitor(t *testing.T) {
	c, srv := newController(t, Options{},
		displaytest.Display{ID: 1},
		displaytest.Display{ID: 2},
	)

	assert.True(t, c.Set(1, 500, false))
	assert.Equal(t, []displaytest.Write{{DisplayID: 2, Value: 500}}, srv.Writes())
	assert.Equal(t, 1, srv.Flushes())
}

// The broadcast writes each configured display exactly once; it does not
// also write a display id one past the last configured display.
func TestSetAffectAllWritesEachConfiguredDisplayOnce(t *testing.T) {
	c, srv := newController(t, Options{},
		displaytest.Display{ID: 1},
		displaytest.Display{ID: 2},
		displaytest.Display{ID: 3},
	)

	assert.True(t, c.Set(0, 200, true))
	assert.Equal(t, []displaytest.Write{
		{DisplayID: 1, Value: 200},
		{DisplayID: 2, Value: 200},
		{DisplayID: 3, Value: 200},
	}, srv.Writes())
	assert.Equal(t, 1, srv.Flushes(), "one flush after the loop")

	for _, mon := range c.Registry().Monitors() {
		assert.Equal(t, 200, mon.Level)
	}
}

func TestSetAffectAllSkipsReadOnlyDisplays(t *testing.T) {
	c, srv := newController(t, Options{},
		displaytest.Display{ID: 1},
		displaytest.Display{ID: 2, NoRange: true},
	)

	assert.True(t, c.Set(0, 10, true))
	assert.Equal(t, []displaytest.Write{{DisplayID: 1, Value: 10}}, srv.Writes())
}

func TestSetZeroOnInactiveDisplay(t *testing.T) {
	displays := []displaytest.Display{
		{ID: 1, Level: 0},
		{ID: 2, Level: 512},
	}

	c, srv := newController(t, Options{SkipZeroOnInactive: true}, displays...)
	assert.True(t, c.Reset(0, true))
	assert.Equal(t, []displaytest.Write{{DisplayID: 2, Value: 0}}, srv.Writes())
	assert.False(t, c.Reset(0, false), "zero is refused for the inactive display")

	c, srv = newController(t, Options{}, displays...)
	assert.True(t, c.Reset(0, true))
	assert.Len(t, srv.Writes(), 2)
}

func TestSetUnknownMonitor(t *testing.T) {
	c, srv := newController(t, Options{}, displaytest.Display{ID: 1})

	assert.False(t, c.Set(3, 0, true))
	assert.Empty(t, srv.Writes())
}

func TestGetFailure(t *testing.T) {
	c, srv := newController(t, Options{}, displaytest.Display{ID: 1})
	srv.Displays[0].QueryFail = true

	_, err := c.Get(0)
	assert.ErrorIs(t, err, ErrQueryFailed)

	_, err = c.Get(4)
	assert.ErrorIs(t, err, display.ErrNoMonitor)
}

func TestGetNegativeValue(t *testing.T) {
	c, _ := newController(t, Options{}, displaytest.Display{ID: 1, Level: -700})

	got, err := c.Get(0)
	require.NoError(t, err)
	assert.Equal(t, -700, got)
}

func TestSetPercent(t *testing.T) {
	c, srv := newController(t, Options{}, displaytest.Display{ID: 1})

	assert.True(t, c.SetPercent(0, 80, false))
	assert.Equal(t, []displaytest.Write{{DisplayID: 1, Value: 613}}, srv.Writes())
	assert.False(t, c.SetPercent(9, 80, false))
}

func TestResetAllIgnoresSelection(t *testing.T) {
	tests := []struct {
		name     string
		displays []displaytest.Display
		monitor  int
		want     []displaytest.Write
	}{
		{
			name: "selection past the last monitor",
			displays: []displaytest.Display{
				{ID: 1, Level: 300},
				{ID: 2, Level: 300},
			},
			monitor: 5,
			want:    []displaytest.Write{{DisplayID: 1, Value: 0}, {DisplayID: 2, Value: 0}},
		},
		{
			name: "selected monitor without a range",
			displays: []displaytest.Display{
				{ID: 1, Level: 300},
				{ID: 2, Level: 300, NoRange: true},
			},
			monitor: 1,
			want:    []displaytest.Write{{DisplayID: 1, Value: 0}},
		},
		{
			name: "monitor whose range excludes zero",
			displays: []displaytest.Display{
				{ID: 1, Level: 300},
				{ID: 2, Level: 300, Min: 100, Max: 400},
			},
			monitor: 0,
			want:    []displaytest.Write{{DisplayID: 1, Value: 0}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, srv := newController(t, Options{}, tt.displays...)

			assert.True(t, c.Reset(tt.monitor, true))
			assert.Equal(t, tt.want, srv.Writes())
			assert.Equal(t, 1, srv.Flushes())

			mon, _ := c.Registry().Monitor(0)
			assert.Zero(t, mon.Level)
		})
	}
}

func TestResetAllWithoutWritableMonitors(t *testing.T) {
	c, srv := newController(t, Options{}, displaytest.Display{ID: 1, NoRange: true})

	assert.False(t, c.ResetAll())
	assert.Empty(t, srv.Writes())
	assert.Zero(t, srv.Flushes())
}

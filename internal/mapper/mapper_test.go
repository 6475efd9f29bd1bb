package mapper

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stuartshay/qso-mapper/internal/adif"
	"github.com/stuartshay/qso-mapper/internal/calculator"
	"github.com/stuartshay/qso-mapper/internal/locator"
)

func testHome(t *testing.T) Home {
	t.Helper()
	home, err := NewHome("ea1rfi", "IN52PE")
	require.NoError(t, err)
	return home
}

func TestNewHome(t *testing.T) {
	home := testHome(t)
	assert.Equal(t, "EA1RFI", home.Callsign)
	assert.Equal(t, "IN52PE", home.Grid)
	assert.InDelta(t, 42.1875, home.Location.Latitude, 1e-6)
	assert.InDelta(t, -8.708333, home.Location.Longitude, 1e-6)

	_, err := NewHome("EA1RFI", "XX99")
	assert.ErrorIs(t, err, ErrInvalidHome)
	assert.ErrorIs(t, err, locator.ErrMalformedLocator)
}

func TestEnrich_ValidAndEmptyRecord(t *testing.T) {
	records := []adif.Record{
		{"CALL": "K1ABC", "GRIDSQUARE": "FN31", "BAND": "20m", "FREQ": "14.07400", "MODE": "FT8"},
		{},
	}

	batch, err := Enrich(context.Background(), testHome(t), records, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 2, batch.Total)
	assert.Equal(t, 1, batch.Resolved)
	assert.Equal(t, 1, batch.Unresolved())
	assert.False(t, batch.Empty())

	plottable := batch.Plottable()
	require.Len(t, plottable, 1)

	c := plottable[0]
	assert.Equal(t, "K1ABC", c.Callsign)
	assert.Equal(t, "20M", c.Band)
	assert.Equal(t, "14.074", c.Frequency)
	require.NotNil(t, c.Geo)
	assert.Equal(t, locator.SourceGrid, c.Geo.Source)
	assert.InDelta(t, 41.5, c.Geo.Position.Latitude, 1e-9)
	assert.InDelta(t, -73, c.Geo.Position.Longitude, 1e-9)
	assert.InDelta(t, 5193.7, c.Geo.DistanceKM, 1)
	assert.InDelta(t, 292.01, c.Geo.BearingDeg, 0.05)
	assert.Equal(t, 290, c.Geo.BearingBucket)
	assert.Len(t, c.Geo.Path, DefaultPathPoints+1)
	assert.NotEmpty(t, c.Geo.Polyline)

	empty := batch.Contacts[1]
	assert.False(t, empty.Resolved())
	assert.NotEmpty(t, empty.Reason)

	assert.Equal(t, 1, batch.Metrics.TotalLocations)
	assert.InDelta(t, c.Geo.DistanceKM, batch.Metrics.MaxDistanceKM, 1e-9)
}

func TestEnrich_LatLonContactGetsGrid(t *testing.T) {
	records := []adif.Record{
		{"CALL": "EA1XYZ", "LAT": "N42 52.560", "LON": "W008 32.700"},
	}

	batch, err := Enrich(context.Background(), testHome(t), records, Options{})
	require.NoError(t, err)
	require.Equal(t, 1, batch.Resolved)

	c := batch.Contacts[0]
	assert.Equal(t, locator.SourceLatLon, c.Geo.Source)
	assert.Equal(t, "IN52rv", c.Grid)
	assert.Nil(t, c.Geo.Path)
	assert.Empty(t, c.Geo.Polyline)
}

func TestEnrich_NothingPlottable(t *testing.T) {
	records := []adif.Record{
		{"CALL": "A1"},
		{"CALL": "B2", "GRIDSQUARE": "??"},
		{"CALL": "C3", "LAT": "X99 999.000", "LON": "W008 32.700"},
	}

	batch, err := Enrich(context.Background(), testHome(t), records, DefaultOptions())
	require.NoError(t, err)
	assert.True(t, batch.Empty())
	assert.Equal(t, 3, batch.Total)
	assert.Empty(t, batch.Plottable())
	assert.Equal(t, calculator.DistanceMetrics{}, batch.Metrics)

	for _, c := range batch.Contacts {
		assert.Contains(t, c.Reason, locator.ErrUnresolvableCoordinate.Error())
	}
}

func TestEnrich_PreservesOrder(t *testing.T) {
	grids := []string{"FN31", "JO01", "PM95", "QF56", "GG66", "KP20", "BL11", "RE78"}
	records := make([]adif.Record, 0, 400)
	for i := 0; i < 400; i++ {
		records = append(records, adif.Record{
			"CALL":       fmt.Sprintf("CALL%d", i),
			"GRIDSQUARE": grids[i%len(grids)],
		})
	}

	batch, err := Enrich(context.Background(), testHome(t), records, Options{PathPoints: 10, Workers: 4})
	require.NoError(t, err)
	require.Len(t, batch.Contacts, 400)
	assert.Equal(t, 400, batch.Resolved)

	for i, c := range batch.Contacts {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, fmt.Sprintf("CALL%d", i), c.Callsign)
		assert.Len(t, c.Geo.Path, 11)
	}
}

func TestEnrich_EllipsoidalModel(t *testing.T) {
	records := []adif.Record{{"CALL": "K1ABC", "GRIDSQUARE": "FN31"}}

	spherical, err := Enrich(context.Background(), testHome(t), records, Options{Model: calculator.Spherical})
	require.NoError(t, err)
	ellipsoidal, err := Enrich(context.Background(), testHome(t), records, Options{Model: calculator.Ellipsoidal})
	require.NoError(t, err)

	s := spherical.Contacts[0].Geo.DistanceKM
	e := ellipsoidal.Contacts[0].Geo.DistanceKM
	assert.NotEqual(t, s, e)
	assert.InEpsilon(t, s, e, 0.005)
}

func TestEnrich_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Enrich(ctx, testHome(t), []adif.Record{{"GRIDSQUARE": "FN31"}}, DefaultOptions())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEnrich_NoRecords(t *testing.T) {
	batch, err := Enrich(context.Background(), testHome(t), nil, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 0, batch.Total)
	assert.True(t, batch.Empty())
}

func TestMeasure_HomeItself(t *testing.T) {
	home := testHome(t)
	geo, err := Measure(home.Location, home.Location, Options{PathPoints: 5})
	require.NoError(t, err)
	assert.Equal(t, 0.0, geo.DistanceKM)
	assert.Equal(t, 0.0, geo.BearingDeg)
	assert.Equal(t, 0, geo.BearingBucket)
	require.Len(t, geo.Path, 6)
	for _, p := range geo.Path {
		assert.InDelta(t, home.Location.Latitude, p.Latitude, 1e-9)
	}
}

func TestDisplayFrequency(t *testing.T) {
	tests := map[string]string{
		"14.07400": "14.074",
		"7.000":    "7",
		"144":      "144",
		"":         "",
		"50.3130":  "50.313",
	}
	for in, want := range tests {
		assert.Equal(t, want, displayFrequency(in), in)
	}
}

package mapper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stuartshay/qso-mapper/internal/calculator"
)

func TestParseEndpoint(t *testing.T) {
	loc, err := ParseEndpoint("FN31")
	require.NoError(t, err)
	assert.InDelta(t, 41.5, loc.Latitude, 1e-9)
	assert.InDelta(t, -73.0, loc.Longitude, 1e-9)

	loc, err = ParseEndpoint(" 40.7128, -74.0060 ")
	require.NoError(t, err)
	assert.Equal(t, calculator.Location{Latitude: 40.7128, Longitude: -74.006}, loc)

	for _, bad := range []string{"", "ZZ99", "north,west", "91,0", "0,181"} {
		_, err := ParseEndpoint(bad)
		assert.Error(t, err, bad)
	}
}

func TestComputeRoute(t *testing.T) {
	from, err := ParseEndpoint("IN52PE")
	require.NoError(t, err)
	to, err := ParseEndpoint("FN31")
	require.NoError(t, err)

	route, err := ComputeRoute(from, to, Options{PathPoints: 20})
	require.NoError(t, err)
	assert.InDelta(t, 5193.7, route.DistanceKM, 1.0)
	assert.Equal(t, 290, route.BearingBucket)
	require.Len(t, route.Points, 21)
	assert.Equal(t, from, route.Points[0])
	assert.Equal(t, to, route.Points[20])
	assert.NotEmpty(t, route.Polyline)

	route, err = ComputeRoute(from, to, Options{})
	require.NoError(t, err)
	assert.Empty(t, route.Points)
	assert.Empty(t, route.Polyline)
}

package calculator

import "github.com/twpayne/go-polyline"

// EncodePolyline encodes points with the Google encoded polyline algorithm
// (five decimal places, latitude first) for compact transfer to map clients
func EncodePolyline(points []Location) string {
	coords := make([][]float64, len(points))
	for i, p := range points {
		coords[i] = []float64{p.Latitude, p.Longitude}
	}
	return string(polyline.EncodeCoords(coords))
}

package mapper

import (
	"sort"

	"github.com/stuartshay/qso-mapper/internal/calculator"
)

// BandCount is the number of plotted contacts on one band
type BandCount struct {
	Band  string `json:"band"`
	Count int    `json:"count"`
}

// BearingCount is the number of plotted contacts in one bearing bucket
type BearingCount struct {
	Bucket int `json:"bucket"`
	Count  int `json:"count"`
}

// Stats feeds the band and bearing charts
type Stats struct {
	Total      int                        `json:"total"`
	Resolved   int                        `json:"resolved"`
	Unresolved int                        `json:"unresolved"`
	Metrics    calculator.DistanceMetrics `json:"metrics"`
	Bands      []BandCount                `json:"bands"`
	Bearings   []BearingCount             `json:"bearings"`
}

// Stats summarizes the batch
func (b *Batch) Stats() Stats {
	plottable := b.Plottable()
	return Stats{
		Total:      b.Total,
		Resolved:   b.Resolved,
		Unresolved: b.Unresolved(),
		Metrics:    b.Metrics,
		Bands:      BandCounts(plottable),
		Bearings:   BearingCounts(plottable),
	}
}

// BandCounts counts resolved contacts per band, most used first. Contacts
// without a band are not counted.
func BandCounts(contacts []Contact) []BandCount {
	counts := make(map[string]int)
	for _, c := range contacts {
		if !c.Resolved() || c.Band == "" {
			continue
		}
		counts[c.Band]++
	}

	out := make([]BandCount, 0, len(counts))
	for band, n := range counts {
		out = append(out, BandCount{Band: band, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Band < out[j].Band
	})
	return out
}

// BearingCounts counts resolved contacts per bearing bucket, ascending by bucket
func BearingCounts(contacts []Contact) []BearingCount {
	counts := make(map[int]int)
	for _, c := range contacts {
		if !c.Resolved() {
			continue
		}
		counts[c.Geo.BearingBucket]++
	}

	out := make([]BearingCount, 0, len(counts))
	for bucket, n := range counts {
		out = append(out, BearingCount{Bucket: bucket, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Bucket < out[j].Bucket })
	return out
}

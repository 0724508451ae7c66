package coordinator

import (
	"sort"
	"time"
)

// candidate is one support/resistance/pivot price level proposed by a
// single timeframe's bundle.
type candidate struct {
	Price     float64
	ZoneType  string
	Timeframe string
	Touch     time.Time
}

// clusterCandidates implements spec §4.E.5's linear-scan clustering:
// sort ascending, join adjacent candidates within tolerance, stop
// extending a cluster once the gap exceeds tolerance. A cluster becomes
// a zone only when it has >=2 candidates from >=2 distinct timeframes
// (spec §8's clustering invariant: every candidate ends up in exactly
// one zone, or none).
func clusterCandidates(cands []candidate, tolerance float64) []ConfluenceZone {
	if len(cands) == 0 {
		return nil
	}
	sorted := append([]candidate(nil), cands...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Price < sorted[j].Price })

	var zones []ConfluenceZone
	i := 0
	for i < len(sorted) {
		j := i + 1
		for j < len(sorted) && sorted[j].Price-sorted[j-1].Price <= tolerance {
			j++
		}
		group := sorted[i:j]
		if len(group) >= 2 {
			tfSet := map[string]bool{}
			sum, lo, hi := 0.0, group[0].Price, group[0].Price
			first, last := group[0].Touch, group[0].Touch
			zoneType := group[0].ZoneType
			for _, c := range group {
				tfSet[c.Timeframe] = true
				sum += c.Price
				if c.Price < lo {
					lo = c.Price
				}
				if c.Price > hi {
					hi = c.Price
				}
				if c.Touch.Before(first) {
					first = c.Touch
				}
				if c.Touch.After(last) {
					last = c.Touch
				}
			}
			if len(tfSet) >= 2 {
				timeframes := make([]string, 0, len(tfSet))
				for tf := range tfSet {
					timeframes = append(timeframes, tf)
				}
				sort.Strings(timeframes)
				zones = append(zones, ConfluenceZone{
					Center:     sum / float64(len(group)),
					Upper:      hi,
					Lower:      lo,
					ZoneType:   zoneType,
					Strength:   len(tfSet),
					Timeframes: timeframes,
					FirstTouch: first,
					LastTouch:  last,
				})
			}
		}
		i = j
	}
	return zones
}

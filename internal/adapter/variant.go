package adapter

import "sort"

// Variant is one encoding of the same media stream.
type Variant struct {
	URL     string
	Bitrate float64
}

// HighestBitrate returns the variant with the largest bitrate. Ties keep
// the earlier variant.
func HighestBitrate(variants []Variant) (Variant, bool) {
	if len(variants) == 0 {
		return Variant{}, false
	}
	best := variants[0]
	for _, v := range variants[1:] {
		if v.Bitrate > best.Bitrate {
			best = v
		}
	}
	return best, true
}

// MiddleBandwidth sorts variants by ascending bitrate and returns the one
// at index min(n-1, n/2), trading quality against file size.
func MiddleBandwidth(variants []Variant) (Variant, bool) {
	if len(variants) == 0 {
		return Variant{}, false
	}
	sorted := make([]Variant, len(variants))
	copy(sorted, variants)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Bitrate < sorted[j].Bitrate })
	return sorted[min(len(sorted)-1, len(sorted)/2)], true
}

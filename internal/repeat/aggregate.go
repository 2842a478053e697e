package repeat

import (
	"github.com/trailtools/rde/internal/match"
)

// SelectSuspicious filters one directory's candidate locations down to
// those with at least threshold instances, preserving order. It also
// returns the number of instances covered by the kept locations.
func SelectSuspicious(locs []*match.DetectionLocation, threshold int) (kept []*match.DetectionLocation, nInstances int) {
	kept = make([]*match.DetectionLocation, 0)
	for _, l := range locs {
		if l.Count() < threshold {
			continue
		}
		kept = append(kept, l)
		nInstances += l.Count()
	}
	return kept, nInstances
}

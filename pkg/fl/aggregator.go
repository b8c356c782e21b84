package fl

import (
	"cmp"
	"slices"

	"github.com/absmach/splitfed/pkg/message"
)

type FedAvgAggregator struct {
	total float64
}

// NewFedAvgAggregator weights every contribution by Weight/total. total is
// the configured sample count across all peers, not the sum over the
// contributions actually received.
func NewFedAvgAggregator(total float64) Aggregator {
	return &FedAvgAggregator{total: total}
}

func (f *FedAvgAggregator) Aggregate(global message.Snapshot, contributions []Contribution) (message.Snapshot, error) {
	return FedAvg(global.ZeroLike(), contributions, f.total)
}

// FedAvg adds every contribution scaled by Weight/total onto zero and
// returns the result. Contributions are summed in peer order so the result
// does not depend on arrival order. Parameters missing from zero are
// ignored and extra elements beyond a tensor's length are skipped.
func FedAvg(zero message.Snapshot, contributions []Contribution, total float64) (message.Snapshot, error) {
	if total <= 0 {
		return nil, ErrInvalidTotal
	}
	if len(contributions) == 0 {
		return nil, ErrNoUpdates
	}

	sorted := slices.Clone(contributions)
	slices.SortStableFunc(sorted, func(a, b Contribution) int {
		return cmp.Compare(a.PeerID, b.PeerID)
	})

	acc := zero.Clone()
	for _, c := range sorted {
		scale := c.Weight / total
		for name, t := range c.Snapshot {
			dst, ok := acc[name]
			if !ok {
				continue
			}
			n := min(len(dst.Data), len(t.Data))
			for i := range n {
				dst.Data[i] += t.Data[i] * scale
			}
		}
	}

	return acc, nil
}

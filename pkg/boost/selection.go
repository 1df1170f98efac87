package boost

import "github.com/holiman/uint256"

// IndexedValue pairs a bid's value with the index of the relay that
// returned it.
type IndexedValue struct {
	Value *uint256.Int
	Index int
}

// SelectBestBids returns the indices of the most valuable bids, in input
// order. Every index whose value equals the maximum is retained; ties are
// broken later by the caller (a random pick among them, then keeping only
// the bids with the picked bid's block hash), not here.
func SelectBestBids(bids []IndexedValue) []int {
	bestValue := uint256.NewInt(0)

	var indices []int

	for _, bid := range bids {
		value := bid.Value
		if value == nil {
			value = uint256.NewInt(0)
		}

		if value.Gt(bestValue) {
			bestValue = value
			indices = indices[:0]
		}

		if value.Eq(bestValue) {
			indices = append(indices, bid.Index)
		}
	}

	return indices
}

package auctioneer

// gasBoundDivisor bounds how far a child block's gas limit may drift from
// its parent in one block: at most parent/gasBoundDivisor in either
// direction, per EIP-1559's gas limit adjustment rule.
const gasBoundDivisor = 1024

// ComputePreferredGasLimit clamps a proposer's preferred gas limit to the
// range the execution layer will accept for a child of parentGasLimit.
func ComputePreferredGasLimit(preferredGasLimit, parentGasLimit uint64) uint64 {
	switch {
	case preferredGasLimit == parentGasLimit:
		return preferredGasLimit
	case preferredGasLimit > parentGasLimit:
		bound := parentGasLimit + parentGasLimit/gasBoundDivisor
		if preferredGasLimit < bound {
			return preferredGasLimit
		}

		return bound - 1
	default:
		bound := parentGasLimit - parentGasLimit/gasBoundDivisor
		if preferredGasLimit > bound {
			return preferredGasLimit
		}

		return bound + 1
	}
}

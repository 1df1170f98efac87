package boost

import (
	"errors"
	"fmt"

	"github.com/attestantio/go-eth2-client/spec/phase0"
)

// ErrNoBids is returned by FetchBestBid when no relay produced a valid bid
// for the request.
var ErrNoBids = errors.New("no bids returned for proposal")

// ErrMissingOpenBid is returned by OpenBid when the proposer asks to open a
// bid the multiplexer never tracked.
var ErrMissingOpenBid = errors.New("could not find relay to open bid")

// ErrCouldNotRegister is returned by RegisterValidators when every relay
// rejected the batch.
var ErrCouldNotRegister = errors.New("could not register with any relay")

// BidPublicKeyMismatchError flags a bid whose embedded public key does not
// match the configured key of the relay that returned it.
type BidPublicKeyMismatchError struct {
	Bid   phase0.BLSPubKey
	Relay phase0.BLSPubKey
}

func (e *BidPublicKeyMismatchError) Error() string {
	return fmt.Sprintf("bid public key %#x does not match relay public key %#x", e.Bid, e.Relay)
}

// MissingPayloadError is returned by OpenBid when every tracked relay
// returned a payload whose block hash did not match the blinded block.
type MissingPayloadError struct {
	ExpectedBlockHash phase0.Hash32
}

func (e *MissingPayloadError) Error() string {
	return fmt.Sprintf("no relay returned a payload matching block hash %#x", e.ExpectedBlockHash)
}

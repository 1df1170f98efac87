package beaconevents

import (
	"testing"

	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleAttributesEvent = `{
  "version": "capella",
  "data": {
    "proposal_slot": "100",
    "proposer_index": "7",
    "parent_block_hash": "0x0101010101010101010101010101010101010101010101010101010101010101",
    "payload_attributes": {
      "timestamp": "1700000000",
      "prev_randao": "0x0202020202020202020202020202020202020202020202020202020202020202",
      "suggested_fee_recipient": "0x0303030303030303030303030303030303030303",
      "withdrawals": [
        {
          "index": "5",
          "validator_index": "9",
          "address": "0x0404040404040404040404040404040404040404",
          "amount": "12345"
        }
      ]
    }
  }
}`

func TestParsePayloadAttributesEvent(t *testing.T) {
	event, err := parsePayloadAttributesEvent(sampleAttributesEvent)
	require.NoError(t, err)

	assert.Equal(t, "capella", event.Version)
	assert.Equal(t, phase0.Slot(100), event.ProposalSlot)
	assert.Equal(t, phase0.ValidatorIndex(7), event.ProposerIndex)
	assert.Equal(t, uint64(1700000000), event.Timestamp)
	assert.Equal(t, byte(0x01), event.ParentBlockHash[0])
	assert.Equal(t, byte(0x03), event.SuggestedFeeRecipient[0])
	assert.Nil(t, event.ParentBeaconBlockRoot)

	require.Len(t, event.Withdrawals, 1)
	assert.Equal(t, uint64(5), event.Withdrawals[0].Index)
	assert.Equal(t, phase0.ValidatorIndex(9), event.Withdrawals[0].ValidatorIndex)
	assert.Equal(t, uint64(12345), event.Withdrawals[0].AmountGwei)
}

func TestParsePayloadAttributesEventRejectsBadHex(t *testing.T) {
	_, err := parsePayloadAttributesEvent(`{"data":{"proposal_slot":"1","proposer_index":"1",` +
		`"parent_block_hash":"0x1234","payload_attributes":{"timestamp":"1",` +
		`"prev_randao":"0x00","suggested_fee_recipient":"0x00"}}}`)
	require.Error(t, err)
}

func TestParseHeadEvent(t *testing.T) {
	event, err := parseHeadEvent(`{"slot":"33","block":` +
		`"0x0505050505050505050505050505050505050505050505050505050505050505","epoch_transition":true}`)
	require.NoError(t, err)

	assert.Equal(t, phase0.Slot(33), event.Slot)
	assert.True(t, event.EpochTransition)
	assert.Equal(t, byte(0x05), event.Block[0])
}

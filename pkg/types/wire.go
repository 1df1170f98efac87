package types

import (
	"encoding/json"
	"fmt"

	"github.com/attestantio/go-eth2-client/spec/phase0"
)

// VersionedValue wraps a fork-tagged payload the way every Builder/Relay
// API response does: {"version": "...", "data": {...}}.
type VersionedValue[T any] struct {
	Version Version `json:"version"`
	Data    T       `json:"data"`
}

type validatorRegistrationMessageJSON struct {
	FeeRecipient string `json:"fee_recipient"`
	GasLimit     string `json:"gas_limit"`
	Timestamp    string `json:"timestamp"`
	Pubkey       string `json:"pubkey"`
}

func (m *ValidatorRegistrationMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(validatorRegistrationMessageJSON{
		FeeRecipient: encodeHex(m.FeeRecipient[:]),
		GasLimit:     encodeU64(m.GasLimit),
		Timestamp:    encodeU64(m.Timestamp),
		Pubkey:       encodeHex(m.Pubkey[:]),
	})
}

func (m *ValidatorRegistrationMessage) UnmarshalJSON(data []byte) error {
	var w validatorRegistrationMessageJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	if err := decodeHexFixed(w.FeeRecipient, m.FeeRecipient[:]); err != nil {
		return fmt.Errorf("fee_recipient: %w", err)
	}

	gasLimit, err := decodeU64(w.GasLimit)
	if err != nil {
		return fmt.Errorf("gas_limit: %w", err)
	}

	timestamp, err := decodeU64(w.Timestamp)
	if err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}

	if err := decodeHexFixed(w.Pubkey, m.Pubkey[:]); err != nil {
		return fmt.Errorf("pubkey: %w", err)
	}

	m.GasLimit = gasLimit
	m.Timestamp = timestamp

	return nil
}

type signedValidatorRegistrationJSON struct {
	Message   *ValidatorRegistrationMessage `json:"message"`
	Signature string                        `json:"signature"`
}

func (s *SignedValidatorRegistration) MarshalJSON() ([]byte, error) {
	return json.Marshal(signedValidatorRegistrationJSON{
		Message:   s.Message,
		Signature: encodeHex(s.Signature[:]),
	})
}

func (s *SignedValidatorRegistration) UnmarshalJSON(data []byte) error {
	var w signedValidatorRegistrationJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	if w.Message == nil {
		return fmt.Errorf("missing message")
	}

	var sig phase0.BLSSignature
	if err := decodeHexFixed(w.Signature, sig[:]); err != nil {
		return fmt.Errorf("signature: %w", err)
	}

	s.Message = w.Message
	s.Signature = sig

	return nil
}

type bidTraceJSON struct {
	Slot                 string `json:"slot"`
	ParentHash           string `json:"parent_hash"`
	BlockHash            string `json:"block_hash"`
	BuilderPubkey        string `json:"builder_pubkey"`
	ProposerPubkey       string `json:"proposer_pubkey"`
	ProposerFeeRecipient string `json:"proposer_fee_recipient"`
	GasLimit             string `json:"gas_limit"`
	GasUsed              string `json:"gas_used"`
	Value                string `json:"value"`
}

func (b *BidTrace) MarshalJSON() ([]byte, error) {
	return json.Marshal(bidTraceJSON{
		Slot:                 encodeU64(uint64(b.Slot)),
		ParentHash:           encodeHex(b.ParentHash[:]),
		BlockHash:            encodeHex(b.BlockHash[:]),
		BuilderPubkey:        encodeHex(b.BuilderPubkey[:]),
		ProposerPubkey:       encodeHex(b.ProposerPubkey[:]),
		ProposerFeeRecipient: encodeHex(b.ProposerFeeRecipient[:]),
		GasLimit:             encodeU64(b.GasLimit),
		GasUsed:              encodeU64(b.GasUsed),
		Value:                encodeU256(b.Value),
	})
}

func (b *BidTrace) UnmarshalJSON(data []byte) error {
	var w bidTraceJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	slot, err := decodeU64(w.Slot)
	if err != nil {
		return fmt.Errorf("slot: %w", err)
	}

	if err := decodeHexFixed(w.ParentHash, b.ParentHash[:]); err != nil {
		return fmt.Errorf("parent_hash: %w", err)
	}

	if err := decodeHexFixed(w.BlockHash, b.BlockHash[:]); err != nil {
		return fmt.Errorf("block_hash: %w", err)
	}

	if err := decodeHexFixed(w.BuilderPubkey, b.BuilderPubkey[:]); err != nil {
		return fmt.Errorf("builder_pubkey: %w", err)
	}

	if err := decodeHexFixed(w.ProposerPubkey, b.ProposerPubkey[:]); err != nil {
		return fmt.Errorf("proposer_pubkey: %w", err)
	}

	if err := decodeHexFixed(w.ProposerFeeRecipient, b.ProposerFeeRecipient[:]); err != nil {
		return fmt.Errorf("proposer_fee_recipient: %w", err)
	}

	gasLimit, err := decodeU64(w.GasLimit)
	if err != nil {
		return fmt.Errorf("gas_limit: %w", err)
	}

	gasUsed, err := decodeU64(w.GasUsed)
	if err != nil {
		return fmt.Errorf("gas_used: %w", err)
	}

	value, err := decodeU256(w.Value)
	if err != nil {
		return fmt.Errorf("value: %w", err)
	}

	b.Slot = phase0.Slot(slot)
	b.GasLimit = gasLimit
	b.GasUsed = gasUsed
	b.Value = value

	return nil
}

type executionPayloadHeaderJSON struct {
	ParentHash       string  `json:"parent_hash"`
	FeeRecipient     string  `json:"fee_recipient"`
	StateRoot        string  `json:"state_root"`
	ReceiptsRoot     string  `json:"receipts_root"`
	PrevRandao       string  `json:"prev_randao"`
	BlockNumber      string  `json:"block_number"`
	GasLimit         string  `json:"gas_limit"`
	GasUsed          string  `json:"gas_used"`
	Timestamp        string  `json:"timestamp"`
	ExtraData        string  `json:"extra_data"`
	BaseFeePerGas    string  `json:"base_fee_per_gas"`
	BlockHash        string  `json:"block_hash"`
	TransactionsRoot string  `json:"transactions_root"`
	WithdrawalsRoot  *string `json:"withdrawals_root,omitempty"`
	BlobGasUsed      *string `json:"blob_gas_used,omitempty"`
	ExcessBlobGas    *string `json:"excess_blob_gas,omitempty"`
}

func (h *ExecutionPayloadHeader) MarshalJSON() ([]byte, error) {
	w := executionPayloadHeaderJSON{
		ParentHash:       encodeHex(h.ParentHash[:]),
		FeeRecipient:     encodeHex(h.FeeRecipient[:]),
		StateRoot:        encodeHex(h.StateRoot[:]),
		ReceiptsRoot:     encodeHex(h.ReceiptsRoot[:]),
		PrevRandao:       encodeHex(h.PrevRandao[:]),
		BlockNumber:      encodeU64(h.BlockNumber),
		GasLimit:         encodeU64(h.GasLimit),
		GasUsed:          encodeU64(h.GasUsed),
		Timestamp:        encodeU64(h.Timestamp),
		ExtraData:        encodeHex(h.ExtraData),
		BaseFeePerGas:    encodeU256(h.BaseFeePerGas),
		BlockHash:        encodeHex(h.BlockHash[:]),
		TransactionsRoot: encodeHex(h.TransactionsRoot[:]),
	}

	if h.WithdrawalsRoot != nil {
		s := encodeHex(h.WithdrawalsRoot[:])
		w.WithdrawalsRoot = &s
	}

	if h.BlobGasUsed != nil {
		s := encodeU64(*h.BlobGasUsed)
		w.BlobGasUsed = &s
	}

	if h.ExcessBlobGas != nil {
		s := encodeU64(*h.ExcessBlobGas)
		w.ExcessBlobGas = &s
	}

	return json.Marshal(w)
}

func (h *ExecutionPayloadHeader) UnmarshalJSON(data []byte) error {
	var w executionPayloadHeaderJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	if err := decodeHexFixed(w.ParentHash, h.ParentHash[:]); err != nil {
		return fmt.Errorf("parent_hash: %w", err)
	}

	if err := decodeHexFixed(w.FeeRecipient, h.FeeRecipient[:]); err != nil {
		return fmt.Errorf("fee_recipient: %w", err)
	}

	if err := decodeHexFixed(w.StateRoot, h.StateRoot[:]); err != nil {
		return fmt.Errorf("state_root: %w", err)
	}

	if err := decodeHexFixed(w.ReceiptsRoot, h.ReceiptsRoot[:]); err != nil {
		return fmt.Errorf("receipts_root: %w", err)
	}

	if err := decodeHexFixed(w.PrevRandao, h.PrevRandao[:]); err != nil {
		return fmt.Errorf("prev_randao: %w", err)
	}

	blockNumber, err := decodeU64(w.BlockNumber)
	if err != nil {
		return fmt.Errorf("block_number: %w", err)
	}

	gasLimit, err := decodeU64(w.GasLimit)
	if err != nil {
		return fmt.Errorf("gas_limit: %w", err)
	}

	gasUsed, err := decodeU64(w.GasUsed)
	if err != nil {
		return fmt.Errorf("gas_used: %w", err)
	}

	timestamp, err := decodeU64(w.Timestamp)
	if err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}

	extraData, err := decodeHexVar(w.ExtraData)
	if err != nil {
		return fmt.Errorf("extra_data: %w", err)
	}

	baseFee, err := decodeU256(w.BaseFeePerGas)
	if err != nil {
		return fmt.Errorf("base_fee_per_gas: %w", err)
	}

	if err := decodeHexFixed(w.BlockHash, h.BlockHash[:]); err != nil {
		return fmt.Errorf("block_hash: %w", err)
	}

	if err := decodeHexFixed(w.TransactionsRoot, h.TransactionsRoot[:]); err != nil {
		return fmt.Errorf("transactions_root: %w", err)
	}

	h.BlockNumber = blockNumber
	h.GasLimit = gasLimit
	h.GasUsed = gasUsed
	h.Timestamp = timestamp
	h.ExtraData = extraData
	h.BaseFeePerGas = baseFee

	if w.WithdrawalsRoot != nil {
		var root phase0.Root
		if err := decodeHexFixed(*w.WithdrawalsRoot, root[:]); err != nil {
			return fmt.Errorf("withdrawals_root: %w", err)
		}

		h.WithdrawalsRoot = &root
		h.Version = VersionCapella
	} else {
		h.Version = VersionBellatrix
	}

	if w.BlobGasUsed != nil && w.ExcessBlobGas != nil {
		blobGasUsed, err := decodeU64(*w.BlobGasUsed)
		if err != nil {
			return fmt.Errorf("blob_gas_used: %w", err)
		}

		excessBlobGas, err := decodeU64(*w.ExcessBlobGas)
		if err != nil {
			return fmt.Errorf("excess_blob_gas: %w", err)
		}

		h.BlobGasUsed = &blobGasUsed
		h.ExcessBlobGas = &excessBlobGas
		h.Version = VersionDeneb
	}

	return nil
}

type builderBidJSON struct {
	Header             *ExecutionPayloadHeader `json:"header"`
	Value              string                  `json:"value"`
	Pubkey             string                  `json:"pubkey"`
	BlobKZGCommitments []string                `json:"blob_kzg_commitments,omitempty"`
}

func (b *BuilderBid) MarshalJSON() ([]byte, error) {
	w := builderBidJSON{
		Header: b.Header,
		Value:  encodeU256(b.Value),
		Pubkey: encodeHex(b.Pubkey[:]),
	}

	if b.Blobs != nil {
		w.BlobKZGCommitments = make([]string, len(b.Blobs.Commitments))
		for i, c := range b.Blobs.Commitments {
			w.BlobKZGCommitments[i] = encodeHex(c[:])
		}
	}

	return json.Marshal(w)
}

func (b *BuilderBid) UnmarshalJSON(data []byte) error {
	var w builderBidJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	if w.Header == nil {
		return fmt.Errorf("missing header")
	}

	value, err := decodeU256(w.Value)
	if err != nil {
		return fmt.Errorf("value: %w", err)
	}

	var pubkey phase0.BLSPubKey
	if err := decodeHexFixed(w.Pubkey, pubkey[:]); err != nil {
		return fmt.Errorf("pubkey: %w", err)
	}

	b.Header = w.Header
	b.Version = w.Header.Version
	b.Value = value
	b.Pubkey = pubkey

	if len(w.BlobKZGCommitments) > 0 {
		commitments := make([][48]byte, len(w.BlobKZGCommitments))
		for i, c := range w.BlobKZGCommitments {
			if err := decodeHexFixed(c, commitments[i][:]); err != nil {
				return fmt.Errorf("blob_kzg_commitments[%d]: %w", i, err)
			}
		}

		b.Blobs = &BlobKZGCommitments{Commitments: commitments}
	}

	return nil
}

type signedBuilderBidJSON struct {
	Message   *BuilderBid `json:"message"`
	Signature string      `json:"signature"`
}

func (s *SignedBuilderBid) MarshalJSON() ([]byte, error) {
	return json.Marshal(signedBuilderBidJSON{
		Message:   s.Bid,
		Signature: encodeHex(s.Signature[:]),
	})
}

func (s *SignedBuilderBid) UnmarshalJSON(data []byte) error {
	var w signedBuilderBidJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	if w.Message == nil {
		return fmt.Errorf("missing message")
	}

	var sig phase0.BLSSignature
	if err := decodeHexFixed(w.Signature, sig[:]); err != nil {
		return fmt.Errorf("signature: %w", err)
	}

	s.Bid = w.Message
	s.Signature = sig

	return nil
}

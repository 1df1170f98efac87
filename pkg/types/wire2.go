package types

import (
	"encoding/json"
	"fmt"

	"github.com/attestantio/go-eth2-client/spec/phase0"
)

type withdrawalJSON struct {
	Index          string `json:"index"`
	ValidatorIndex string `json:"validator_index"`
	Address        string `json:"address"`
	Amount         string `json:"amount"`
}

func (w *Withdrawal) MarshalJSON() ([]byte, error) {
	return json.Marshal(withdrawalJSON{
		Index:          encodeU64(w.Index),
		ValidatorIndex: encodeU64(uint64(w.ValidatorIndex)),
		Address:        encodeHex(w.Address[:]),
		Amount:         encodeU64(w.AmountGwei),
	})
}

func (w *Withdrawal) UnmarshalJSON(data []byte) error {
	var j withdrawalJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}

	index, err := decodeU64(j.Index)
	if err != nil {
		return fmt.Errorf("index: %w", err)
	}

	validatorIndex, err := decodeU64(j.ValidatorIndex)
	if err != nil {
		return fmt.Errorf("validator_index: %w", err)
	}

	amount, err := decodeU64(j.Amount)
	if err != nil {
		return fmt.Errorf("amount: %w", err)
	}

	if err := decodeHexFixed(j.Address, w.Address[:]); err != nil {
		return fmt.Errorf("address: %w", err)
	}

	w.Index = index
	w.ValidatorIndex = phase0.ValidatorIndex(validatorIndex)
	w.AmountGwei = amount

	return nil
}

type executionPayloadJSON struct {
	ParentHash    string       `json:"parent_hash"`
	FeeRecipient  string       `json:"fee_recipient"`
	StateRoot     string       `json:"state_root"`
	ReceiptsRoot  string       `json:"receipts_root"`
	PrevRandao    string       `json:"prev_randao"`
	BlockNumber   string       `json:"block_number"`
	GasLimit      string       `json:"gas_limit"`
	GasUsed       string       `json:"gas_used"`
	Timestamp     string       `json:"timestamp"`
	ExtraData     string       `json:"extra_data"`
	BaseFeePerGas string       `json:"base_fee_per_gas"`
	BlockHash     string       `json:"block_hash"`
	Transactions  []string     `json:"transactions"`
	Withdrawals   []Withdrawal `json:"withdrawals"`
	BlobGasUsed   *string      `json:"blob_gas_used,omitempty"`
	ExcessBlobGas *string      `json:"excess_blob_gas,omitempty"`
}

func (p *ExecutionPayload) MarshalJSON() ([]byte, error) {
	txs := make([]string, len(p.Transactions))
	for i, tx := range p.Transactions {
		txs[i] = encodeHex(tx)
	}

	w := executionPayloadJSON{
		ParentHash:    encodeHex(p.ParentHash[:]),
		FeeRecipient:  encodeHex(p.FeeRecipient[:]),
		StateRoot:     encodeHex(p.StateRoot[:]),
		ReceiptsRoot:  encodeHex(p.ReceiptsRoot[:]),
		PrevRandao:    encodeHex(p.PrevRandao[:]),
		BlockNumber:   encodeU64(p.BlockNumber),
		GasLimit:      encodeU64(p.GasLimit),
		GasUsed:       encodeU64(p.GasUsed),
		Timestamp:     encodeU64(p.Timestamp),
		ExtraData:     encodeHex(p.ExtraData),
		BaseFeePerGas: encodeU256(p.BaseFeePerGas),
		BlockHash:     encodeHex(p.BlockHash[:]),
		Transactions:  txs,
		Withdrawals:   p.Withdrawals,
	}

	if p.BlobGasUsed != nil {
		s := encodeU64(*p.BlobGasUsed)
		w.BlobGasUsed = &s
	}

	if p.ExcessBlobGas != nil {
		s := encodeU64(*p.ExcessBlobGas)
		w.ExcessBlobGas = &s
	}

	return json.Marshal(w)
}

func (p *ExecutionPayload) UnmarshalJSON(data []byte) error {
	var w executionPayloadJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	if err := decodeHexFixed(w.ParentHash, p.ParentHash[:]); err != nil {
		return fmt.Errorf("parent_hash: %w", err)
	}

	if err := decodeHexFixed(w.FeeRecipient, p.FeeRecipient[:]); err != nil {
		return fmt.Errorf("fee_recipient: %w", err)
	}

	if err := decodeHexFixed(w.StateRoot, p.StateRoot[:]); err != nil {
		return fmt.Errorf("state_root: %w", err)
	}

	if err := decodeHexFixed(w.ReceiptsRoot, p.ReceiptsRoot[:]); err != nil {
		return fmt.Errorf("receipts_root: %w", err)
	}

	if err := decodeHexFixed(w.PrevRandao, p.PrevRandao[:]); err != nil {
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

	if err := decodeHexFixed(w.BlockHash, p.BlockHash[:]); err != nil {
		return fmt.Errorf("block_hash: %w", err)
	}

	txs := make([][]byte, len(w.Transactions))
	for i, tx := range w.Transactions {
		b, err := decodeHexVar(tx)
		if err != nil {
			return fmt.Errorf("transactions[%d]: %w", i, err)
		}

		txs[i] = b
	}

	p.BlockNumber = blockNumber
	p.GasLimit = gasLimit
	p.GasUsed = gasUsed
	p.Timestamp = timestamp
	p.ExtraData = extraData
	p.BaseFeePerGas = baseFee
	p.Transactions = txs
	p.Withdrawals = w.Withdrawals

	if w.Withdrawals != nil {
		p.Version = VersionCapella
	} else {
		p.Version = VersionBellatrix
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

		p.BlobGasUsed = &blobGasUsed
		p.ExcessBlobGas = &excessBlobGas
		p.Version = VersionDeneb
	}

	return nil
}

type blobsBundleJSON struct {
	Commitments []string `json:"commitments"`
	Proofs      []string `json:"proofs"`
	Blobs       []string `json:"blobs"`
}

func (b *BlobsBundle) MarshalJSON() ([]byte, error) {
	commitments := make([]string, len(b.Commitments))
	for i, c := range b.Commitments {
		commitments[i] = encodeHex(c[:])
	}

	proofs := make([]string, len(b.Proofs))
	for i, p := range b.Proofs {
		proofs[i] = encodeHex(p[:])
	}

	blobs := make([]string, len(b.Blobs))
	for i, blob := range b.Blobs {
		blobs[i] = encodeHex(blob)
	}

	return json.Marshal(blobsBundleJSON{Commitments: commitments, Proofs: proofs, Blobs: blobs})
}

func (b *BlobsBundle) UnmarshalJSON(data []byte) error {
	var w blobsBundleJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	b.Commitments = make([][48]byte, len(w.Commitments))
	for i, c := range w.Commitments {
		if err := decodeHexFixed(c, b.Commitments[i][:]); err != nil {
			return fmt.Errorf("commitments[%d]: %w", i, err)
		}
	}

	b.Proofs = make([][48]byte, len(w.Proofs))
	for i, p := range w.Proofs {
		if err := decodeHexFixed(p, b.Proofs[i][:]); err != nil {
			return fmt.Errorf("proofs[%d]: %w", i, err)
		}
	}

	b.Blobs = make([][]byte, len(w.Blobs))
	for i, blob := range w.Blobs {
		raw, err := decodeHexVar(blob)
		if err != nil {
			return fmt.Errorf("blobs[%d]: %w", i, err)
		}

		b.Blobs[i] = raw
	}

	return nil
}

type signedBidSubmissionJSON struct {
	Message          *BidTrace         `json:"message"`
	ExecutionPayload *ExecutionPayload `json:"execution_payload"`
	BlobsBundle      *BlobsBundle      `json:"blobs_bundle,omitempty"`
	Signature        string            `json:"signature"`
}

func (s *SignedBidSubmission) MarshalJSON() ([]byte, error) {
	return json.Marshal(signedBidSubmissionJSON{
		Message:          s.Message,
		ExecutionPayload: s.ExecutionPayload,
		BlobsBundle:      s.BlobsBundle,
		Signature:        encodeHex(s.Signature[:]),
	})
}

func (s *SignedBidSubmission) UnmarshalJSON(data []byte) error {
	var w signedBidSubmissionJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	if w.Message == nil || w.ExecutionPayload == nil {
		return fmt.Errorf("missing message or execution_payload")
	}

	var sig phase0.BLSSignature
	if err := decodeHexFixed(w.Signature, sig[:]); err != nil {
		return fmt.Errorf("signature: %w", err)
	}

	s.Message = w.Message
	s.ExecutionPayload = w.ExecutionPayload
	s.BlobsBundle = w.BlobsBundle
	s.Signature = sig

	return nil
}

type blindedBeaconBlockJSON struct {
	Slot          string `json:"slot"`
	ProposerIndex string `json:"proposer_index"`
	ParentRoot    string `json:"parent_root"`
	StateRoot     string `json:"state_root"`
	Body          struct {
		ExecutionPayloadHeader *ExecutionPayloadHeader `json:"execution_payload_header"`
	} `json:"body"`
}

func (b *BlindedBeaconBlock) MarshalJSON() ([]byte, error) {
	var w blindedBeaconBlockJSON
	w.Slot = encodeU64(uint64(b.Slot))
	w.ProposerIndex = encodeU64(uint64(b.ProposerIndex))
	w.ParentRoot = encodeHex(b.ParentRoot[:])
	w.StateRoot = encodeHex(b.StateRoot[:])
	w.Body.ExecutionPayloadHeader = b.Body.ExecutionPayloadHeader

	return json.Marshal(w)
}

func (b *BlindedBeaconBlock) UnmarshalJSON(data []byte) error {
	var w blindedBeaconBlockJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	slot, err := decodeU64(w.Slot)
	if err != nil {
		return fmt.Errorf("slot: %w", err)
	}

	proposerIndex, err := decodeU64(w.ProposerIndex)
	if err != nil {
		return fmt.Errorf("proposer_index: %w", err)
	}

	if w.Body.ExecutionPayloadHeader == nil {
		return fmt.Errorf("missing body.execution_payload_header")
	}

	b.Slot = phase0.Slot(slot)
	b.ProposerIndex = phase0.ValidatorIndex(proposerIndex)

	if err := decodeHexFixed(w.ParentRoot, b.ParentRoot[:]); err != nil {
		return fmt.Errorf("parent_root: %w", err)
	}

	if err := decodeHexFixed(w.StateRoot, b.StateRoot[:]); err != nil {
		return fmt.Errorf("state_root: %w", err)
	}

	b.Body = &BlindedBeaconBlockBody{ExecutionPayloadHeader: w.Body.ExecutionPayloadHeader}

	return nil
}

type signedBlindedBeaconBlockJSON struct {
	Message   *BlindedBeaconBlock `json:"message"`
	Signature string              `json:"signature"`
}

func (s *SignedBlindedBeaconBlock) MarshalJSON() ([]byte, error) {
	return json.Marshal(signedBlindedBeaconBlockJSON{
		Message:   s.Message,
		Signature: encodeHex(s.Signature[:]),
	})
}

func (s *SignedBlindedBeaconBlock) UnmarshalJSON(data []byte) error {
	var w signedBlindedBeaconBlockJSON
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

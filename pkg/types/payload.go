package types

import (
	"crypto/sha256"

	"github.com/attestantio/go-eth2-client/spec/bellatrix"
	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/holiman/uint256"
)

// Version tags which fork shape a payload/bid/block carries. Rather than
// separate Go types per fork (Bellatrix/Capella/Deneb structs), this
// repository uses one superset struct gated by Version, with a Version()
// accessor playing the role of the tagged sum the design notes call for:
// fork-specific fields (WithdrawalsRoot, blob fields, KZG commitments) are
// simply absent pre-Capella/pre-Deneb. ExecutionPayload.Header switches on
// Version; hash-tree-root computation and JSON encoding include a
// fork-specific field whenever it is set, and JSON decoding sets Version
// from which fork-specific fields are present.
type Version string

const (
	VersionBellatrix Version = "bellatrix"
	VersionCapella   Version = "capella"
	VersionDeneb     Version = "deneb"
)

// Withdrawal is a single validator withdrawal processed in a Capella+
// payload.
type Withdrawal struct {
	Index          uint64
	ValidatorIndex phase0.ValidatorIndex
	Address        bellatrix.ExecutionAddress
	AmountGwei     uint64
}

func (w *Withdrawal) leaf() [32]byte {
	leaves := make([][32]byte, 4)
	leaves[0] = leU64(w.Index)
	leaves[1] = leU64(uint64(w.ValidatorIndex))

	var addr [32]byte
	copy(addr[:20], w.Address[:])
	leaves[2] = addr

	leaves[3] = leU64(w.AmountGwei)

	return merkleize(leaves)
}

func withdrawalsRoot(ws []Withdrawal) phase0.Root {
	leaves := make([][32]byte, len(ws))
	for i := range ws {
		leaves[i] = ws[i].leaf()
	}

	return merkleize(leaves)
}

// ExecutionPayloadHeader is the blinded stand-in for a full execution
// payload: everything a relay needs a proposer to commit to without
// revealing the transactions themselves.
type ExecutionPayloadHeader struct {
	Version          Version
	ParentHash       phase0.Hash32
	FeeRecipient     bellatrix.ExecutionAddress
	StateRoot        phase0.Root
	ReceiptsRoot     phase0.Root
	PrevRandao       [32]byte
	BlockNumber      uint64
	GasLimit         uint64
	GasUsed          uint64
	Timestamp        uint64
	ExtraData        []byte
	BaseFeePerGas    *uint256.Int
	BlockHash        phase0.Hash32
	TransactionsRoot phase0.Root
	WithdrawalsRoot  *phase0.Root // Capella+
	BlobGasUsed      *uint64      // Deneb+
	ExcessBlobGas    *uint64      // Deneb+
}

// HashTreeRoot merkleizes the header's leaves. Real consensus SSZ would
// merkleize ExtraData as a bitlist and Transactions/Withdrawals as list
// roots; since this is consumed only as "merkleize and sign," this
// implementation hashes ExtraData as a single leaf and folds in the
// precomputed transactions/withdrawals roots directly.
func (h *ExecutionPayloadHeader) HashTreeRoot() [32]byte {
	leaves := make([][32]byte, 0, 16)

	leaves = append(leaves, h.ParentHash)

	var feeRecipientLeaf [32]byte
	copy(feeRecipientLeaf[:20], h.FeeRecipient[:])
	leaves = append(leaves, feeRecipientLeaf)

	leaves = append(leaves, h.StateRoot, h.ReceiptsRoot, h.PrevRandao)
	leaves = append(leaves, leU64(h.BlockNumber), leU64(h.GasLimit), leU64(h.GasUsed), leU64(h.Timestamp))
	leaves = append(leaves, sha256.Sum256(h.ExtraData))

	if h.BaseFeePerGas != nil {
		leaves = append(leaves, leBytes(h.BaseFeePerGas.Bytes()))
	} else {
		leaves = append(leaves, [32]byte{})
	}

	leaves = append(leaves, h.BlockHash, h.TransactionsRoot)

	if h.WithdrawalsRoot != nil {
		leaves = append(leaves, *h.WithdrawalsRoot)
	}

	if h.BlobGasUsed != nil {
		leaves = append(leaves, leU64(*h.BlobGasUsed))
	}

	if h.ExcessBlobGas != nil {
		leaves = append(leaves, leU64(*h.ExcessBlobGas))
	}

	return merkleize(leaves)
}

// BlobsBundle carries the KZG commitments, proofs, and blobs accompanying
// a Deneb+ payload.
type BlobsBundle struct {
	Commitments [][48]byte
	Proofs      [][48]byte
	Blobs       [][]byte
}

// ExecutionPayload is the full payload a relay hands back on open_bid.
type ExecutionPayload struct {
	Version       Version
	ParentHash    phase0.Hash32
	FeeRecipient  bellatrix.ExecutionAddress
	StateRoot     phase0.Root
	ReceiptsRoot  phase0.Root
	PrevRandao    [32]byte
	BlockNumber   uint64
	GasLimit      uint64
	GasUsed       uint64
	Timestamp     uint64
	ExtraData     []byte
	BaseFeePerGas *uint256.Int
	BlockHash     phase0.Hash32
	Transactions  [][]byte
	Withdrawals   []Withdrawal // Capella+
	BlobGasUsed   *uint64      // Deneb+
	ExcessBlobGas *uint64      // Deneb+
}

func transactionsRoot(txs [][]byte) phase0.Root {
	leaves := make([][32]byte, len(txs))
	for i, tx := range txs {
		leaves[i] = sha256.Sum256(tx)
	}

	return merkleize(leaves)
}

// Header derives the blinded header for this payload. The invariant
// hash_tree_root(Header()) == hash_tree_root(block's execution payload
// header) must hold whenever a payload is returned from open_bid.
func (p *ExecutionPayload) Header() *ExecutionPayloadHeader {
	h := &ExecutionPayloadHeader{
		Version:          p.Version,
		ParentHash:       p.ParentHash,
		FeeRecipient:     p.FeeRecipient,
		StateRoot:        p.StateRoot,
		ReceiptsRoot:     p.ReceiptsRoot,
		PrevRandao:       p.PrevRandao,
		BlockNumber:      p.BlockNumber,
		GasLimit:         p.GasLimit,
		GasUsed:          p.GasUsed,
		Timestamp:        p.Timestamp,
		ExtraData:        p.ExtraData,
		BaseFeePerGas:    p.BaseFeePerGas,
		BlockHash:        p.BlockHash,
		TransactionsRoot: transactionsRoot(p.Transactions),
	}

	if p.Version != VersionBellatrix {
		root := withdrawalsRoot(p.Withdrawals)
		h.WithdrawalsRoot = &root
	}

	if p.Version == VersionDeneb {
		h.BlobGasUsed = p.BlobGasUsed
		h.ExcessBlobGas = p.ExcessBlobGas
	}

	return h
}

package database

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ZeroHash represents a hash code of zeros. It is the parent hash of the
// genesis block and the tip value before any block has been indexed.
var ZeroHash = common.Hash{}

// Sizes of the canonical encodings.
const (
	HeaderSize = common.HashLength + 8 + 4 + 4
	BlockSize  = HeaderSize + common.HashLength
)

// =============================================================================

// BlockHeader represents common information required for each block.
type BlockHeader struct {
	PrevHash   common.Hash // Hash of the previous block in the chain.
	Nonce      uint64      // Value identified to solve the hash solution.
	Difficulty uint32      // Divisor of the max target, larger is harder.
	Number     uint32      // Block number in the chain.
}

// Block represents a mined block and the hash it claims for its header.
type Block struct {
	Header BlockHeader
	Hash   common.Hash
}

// NewBlock constructs a block with a zero nonce and no hash. The hash is
// established by mining.
func NewBlock(prevHash common.Hash, difficulty uint32, number uint32) Block {
	return Block{
		Header: BlockHeader{
			PrevHash:   prevHash,
			Difficulty: difficulty,
			Number:     number,
		},
	}
}

// NewGenesisBlock constructs the parentless first block of the chain. Every
// node builds the same genesis block locally so the hash is deterministic.
func NewGenesisBlock(difficulty uint32) Block {
	b := NewBlock(ZeroHash, difficulty, 0)
	b.Hash = HashHeader(b.Header)

	return b
}

// =============================================================================

// EncodeHeader returns the canonical byte layout of the header. The layout is
// fixed so independent implementations produce identical hashes:
//
//	prev_hash(32) | nonce(8, BE) | difficulty(4, BE) | number(4, BE)
func EncodeHeader(h BlockHeader) []byte {
	buf := make([]byte, HeaderSize)

	copy(buf, h.PrevHash[:])
	binary.BigEndian.PutUint64(buf[32:40], h.Nonce)
	binary.BigEndian.PutUint32(buf[40:44], h.Difficulty)
	binary.BigEndian.PutUint32(buf[44:48], h.Number)

	return buf
}

// DecodeHeader parses the canonical byte layout of a header.
func DecodeHeader(data []byte) (BlockHeader, error) {
	if len(data) != HeaderSize {
		return BlockHeader{}, fmt.Errorf("header length %d, exp %d", len(data), HeaderSize)
	}

	h := BlockHeader{
		PrevHash:   common.BytesToHash(data[:32]),
		Nonce:      binary.BigEndian.Uint64(data[32:40]),
		Difficulty: binary.BigEndian.Uint32(data[40:44]),
		Number:     binary.BigEndian.Uint32(data[44:48]),
	}

	return h, nil
}

// HashHeader returns the Keccak-256 digest of the canonical header encoding.
func HashHeader(h BlockHeader) common.Hash {
	return crypto.Keccak256Hash(EncodeHeader(h))
}

// ComputeHash recomputes the hash from the header. It does not need to
// match the hash the block carries.
func (b Block) ComputeHash() common.Hash {
	return HashHeader(b.Header)
}

// MarshalBinary returns the canonical storage encoding of the block: the
// canonical header followed by the claimed hash.
func (b Block) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, BlockSize)
	buf = append(buf, EncodeHeader(b.Header)...)
	buf = append(buf, b.Hash[:]...)

	return buf, nil
}

// UnmarshalBinary decodes the canonical storage encoding of a block.
func (b *Block) UnmarshalBinary(data []byte) error {
	if len(data) != BlockSize {
		return fmt.Errorf("block length %d, exp %d", len(data), BlockSize)
	}

	h, err := DecodeHeader(data[:HeaderSize])
	if err != nil {
		return err
	}

	b.Header = h
	b.Hash = common.BytesToHash(data[HeaderSize:])

	return nil
}

// =============================================================================

// BlockHeaderData is the text form of a header used over the network.
type BlockHeaderData struct {
	PrevHash   common.Hash `json:"prev_hash"`
	Nonce      uint64      `json:"nonce"`
	Difficulty uint32      `json:"difficulty"`
	Number     uint32      `json:"number"`
}

// BlockData represents what is sent over the network and returned by the
// query API.
type BlockData struct {
	Hash   common.Hash     `json:"hash"`
	Header BlockHeaderData `json:"header"`
}

// NewBlockData constructs the value to serialize to the network.
func NewBlockData(block Block) BlockData {
	return BlockData{
		Hash: block.Hash,
		Header: BlockHeaderData{
			PrevHash:   block.Header.PrevHash,
			Nonce:      block.Header.Nonce,
			Difficulty: block.Header.Difficulty,
			Number:     block.Header.Number,
		},
	}
}

// ToBlock converts a BlockData into a Block.
func ToBlock(bd BlockData) (Block, error) {
	if bd.Hash == ZeroHash {
		return Block{}, errors.New("block hash missing")
	}

	b := Block{
		Header: BlockHeader{
			PrevHash:   bd.Header.PrevHash,
			Nonce:      bd.Header.Nonce,
			Difficulty: bd.Header.Difficulty,
			Number:     bd.Header.Number,
		},
		Hash: bd.Hash,
	}

	return b, nil
}

// Package pow implements the proof of work rules: the target a block hash
// must meet for a given difficulty, block validation and the nonce search.
package pow

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ardanlabs/blocknode/foundation/blockchain/database"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Set of error variables for block validation.
var (
	ErrHashMismatch     = errors.New("block hash does not match header")
	ErrDifficultyTooLow = errors.New("block difficulty too low")
	ErrZeroDifficulty   = errors.New("difficulty must be greater than zero")
)

// maxTarget is the largest 256 bit value.
var maxTarget = new(uint256.Int).SetAllOne()

// EventHandler defines a function that is called when events occur while
// mining.
type EventHandler func(v string, args ...any)

// =============================================================================

// Target returns floor(MAX256 / difficulty). A hash read as a big endian
// unsigned integer must be at or below the target to satisfy the difficulty.
// A difficulty of zero has no target and returns nil.
func Target(difficulty uint32) *uint256.Int {
	if difficulty == 0 {
		return nil
	}

	return new(uint256.Int).Div(maxTarget, uint256.NewInt(uint64(difficulty)))
}

// MeetsTarget reports if the hash is at or below the target for the
// specified difficulty.
func MeetsTarget(hash common.Hash, difficulty uint32) bool {
	target := Target(difficulty)
	if target == nil {
		return false
	}

	h := new(uint256.Int).SetBytes32(hash[:])
	return !h.Gt(target)
}

// Validate checks the block hash is the hash of its header and that the
// proof of work meets the required difficulty.
//
// This is stricter than comparing the hash with Target(required). The header
// must claim at least the required difficulty and the hash must meet the
// target of the difficulty the header claims. A block claiming less than
// required is rejected even when its hash happens to meet Target(required),
// and a block can never add more work to the chain than it solved.
func Validate(block database.Block, required uint32) error {
	if required == 0 {
		return ErrZeroDifficulty
	}

	if hash := block.ComputeHash(); hash != block.Hash {
		return fmt.Errorf("%w: got %s, exp %s", ErrHashMismatch, block.Hash, hash)
	}

	if block.Header.Difficulty < required {
		return fmt.Errorf("%w: header %d, required %d", ErrDifficultyTooLow, block.Header.Difficulty, required)
	}

	if !MeetsTarget(block.Hash, block.Header.Difficulty) {
		return fmt.Errorf("%w: hash %s above target for %d", ErrDifficultyTooLow, block.Hash, block.Header.Difficulty)
	}

	return nil
}

// =============================================================================

// Mine constructs the next block on top of prevHash and searches for a nonce
// that satisfies the difficulty. The search has no time limit, it only ends
// with a solution or when the context is cancelled.
func Mine(ctx context.Context, prevHash common.Hash, number uint32, difficulty uint32, ev EventHandler) (database.Block, error) {
	if ev == nil {
		ev = func(v string, args ...any) {}
	}

	if difficulty == 0 {
		return database.Block{}, ErrZeroDifficulty
	}

	ev("pow: Mine: MINING: started: blk[%d] prevBlk[%s]", number, prevHash)
	defer ev("pow: Mine: MINING: completed: blk[%d]", number)

	nonce, err := randomNonce()
	if err != nil {
		return database.Block{}, err
	}

	block := database.NewBlock(prevHash, difficulty, number)
	block.Header.Nonce = nonce

	target := Target(difficulty)
	h := new(uint256.Int)

	var attempts uint64
	for {
		attempts++
		if attempts%1_000_000 == 0 {
			ev("pow: Mine: MINING: attempts[%d]", attempts)
		}

		if ctx.Err() != nil {
			ev("pow: Mine: MINING: CANCELLED: attempts[%d]", attempts)
			return database.Block{}, ctx.Err()
		}

		hash := block.ComputeHash()
		h.SetBytes32(hash[:])
		if h.Gt(target) {

			// The nonce wraps to zero after the max value.
			block.Header.Nonce++
			continue
		}

		block.Hash = hash

		ev("pow: Mine: MINING: SOLVED: blk[%d] hash[%s] attempts[%d]", number, hash, attempts)

		return block, nil
	}
}

// randomNonce picks the starting point for the nonce search so nodes mining
// the same parent don't walk the same nonces.
func randomNonce() (uint64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("random nonce: %w", err)
	}

	return binary.BigEndian.Uint64(b[:]), nil
}

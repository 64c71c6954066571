package pow_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ardanlabs/blocknode/foundation/blockchain/database"
	"github.com/ardanlabs/blocknode/foundation/blockchain/pow"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_Target(t *testing.T) {
	t.Log("Given the need to compute the proof of work target.")
	{
		max := new(uint256.Int).SetAllOne()

		if pow.Target(1).Cmp(max) != 0 {
			t.Fatalf("\t%s\tShould use the max value for difficulty 1.", failed)
		}
		t.Logf("\t%s\tShould use the max value for difficulty 1.", success)

		exp := new(uint256.Int).Rsh(max, 1)
		if pow.Target(2).Cmp(exp) != 0 {
			t.Fatalf("\t%s\tShould halve the target for difficulty 2.", failed)
		}
		t.Logf("\t%s\tShould halve the target for difficulty 2.", success)

		if pow.Target(0) != nil {
			t.Fatalf("\t%s\tShould have no target for difficulty 0.", failed)
		}
		t.Logf("\t%s\tShould have no target for difficulty 0.", success)

		if !pow.MeetsTarget(common.Hash{}, 50000) {
			t.Fatalf("\t%s\tShould accept a zero hash at any difficulty.", failed)
		}
		if pow.MeetsTarget(common.MaxHash, 2) {
			t.Fatalf("\t%s\tShould reject the max hash at difficulty 2.", failed)
		}
		t.Logf("\t%s\tShould compare the hash as a big endian integer.", success)
	}
}

func Test_Mine(t *testing.T) {
	type table struct {
		name       string
		difficulty uint32
	}

	tt := []table{
		{name: "d1", difficulty: 1},
		{name: "d16", difficulty: 16},
		{name: "d1000", difficulty: 1000},
	}

	t.Log("Given the need to mine blocks that validate.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				g := database.NewGenesisBlock(100)

				b, err := pow.Mine(context.Background(), g.Hash, 1, tst.difficulty, nil)
				if err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to mine: %v", failed, testID, err)
				}
				t.Logf("\t%s\tTest %d:\tShould be able to mine.", success, testID)

				if b.Header.PrevHash != g.Hash || b.Header.Number != 1 || b.Header.Difficulty != tst.difficulty {
					t.Fatalf("\t%s\tTest %d:\tShould build on the parent: %+v", failed, testID, b.Header)
				}

				if b.ComputeHash() != b.Hash {
					t.Fatalf("\t%s\tTest %d:\tShould reproduce the hash from the header.", failed, testID)
				}
				t.Logf("\t%s\tTest %d:\tShould reproduce the hash from the header.", success, testID)

				if !pow.MeetsTarget(b.Hash, tst.difficulty) {
					t.Fatalf("\t%s\tTest %d:\tShould meet the target.", failed, testID)
				}
				if err := pow.Validate(b, tst.difficulty); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould validate: %v", failed, testID, err)
				}
				t.Logf("\t%s\tTest %d:\tShould validate.", success, testID)
			}

			t.Run(tst.name, f)
		}
	}
}

func Test_MineCancel(t *testing.T) {
	t.Log("Given the need to stop mining on shutdown.")
	{
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		// No hash meets this target in any reasonable time.
		_, err := pow.Mine(ctx, database.ZeroHash, 1, 1<<32-1, nil)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("\t%s\tShould return the context error: %v", failed, err)
		}
		t.Logf("\t%s\tShould return the context error.", success)
	}
}

func Test_Validate(t *testing.T) {
	g := database.NewGenesisBlock(100)

	good, err := pow.Mine(context.Background(), g.Hash, 1, 8, nil)
	if err != nil {
		t.Fatalf("Should be able to mine: %v", err)
	}

	tampered := good
	tampered.Header.Number = 2

	claimed := good
	claimed.Header.Difficulty = 1 << 31
	claimed.Hash = claimed.ComputeHash()
	for pow.MeetsTarget(claimed.Hash, claimed.Header.Difficulty) {
		claimed.Header.Nonce++
		claimed.Hash = claimed.ComputeHash()
	}

	// The hash meets the target for 4 but the header only claims 2.
	underclaimed := database.NewBlock(g.Hash, 2, 1)
	underclaimed.Hash = underclaimed.ComputeHash()
	for !pow.MeetsTarget(underclaimed.Hash, 4) {
		underclaimed.Header.Nonce++
		underclaimed.Hash = underclaimed.ComputeHash()
	}

	type table struct {
		name     string
		block    database.Block
		required uint32
		exp      error
	}

	tt := []table{
		{name: "good", block: good, required: 8},
		{name: "weaker", block: good, required: 4},
		{name: "tampered", block: tampered, required: 8, exp: pow.ErrHashMismatch},
		{name: "low", block: good, required: 16, exp: pow.ErrDifficultyTooLow},
		{name: "unsolved", block: claimed, required: 8, exp: pow.ErrDifficultyTooLow},
		{name: "underclaimed", block: underclaimed, required: 4, exp: pow.ErrDifficultyTooLow},
		{name: "zero", block: good, required: 0, exp: pow.ErrZeroDifficulty},
	}

	t.Log("Given the need to validate blocks.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				err := pow.Validate(tst.block, tst.required)

				switch tst.exp {
				case nil:
					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould accept the block: %v", failed, testID, err)
					}
					t.Logf("\t%s\tTest %d:\tShould accept the block.", success, testID)

				default:
					if !errors.Is(err, tst.exp) {
						t.Fatalf("\t%s\tTest %d:\tShould reject with %v, got %v", failed, testID, tst.exp, err)
					}
					t.Logf("\t%s\tTest %d:\tShould reject with %v.", success, testID, tst.exp)
				}
			}

			t.Run(tst.name, f)
		}
	}
}

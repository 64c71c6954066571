// Package genesis maintains access to the genesis file.
package genesis

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/ardanlabs/blocknode/foundation/blockchain/database"
)

// Default values every node must agree on for the chain to converge.
const (
	DefaultDifficulty       = 100
	DefaultMiningDifficulty = 50000
)

// Genesis represents the genesis file.
type Genesis struct {
	Difficulty       uint32 `json:"difficulty"`        // Difficulty recorded in the genesis header.
	MiningDifficulty uint32 `json:"mining_difficulty"` // Difficulty used to mine, and required of received blocks.
}

// Default returns the genesis settings used when no file is present.
func Default() Genesis {
	return Genesis{
		Difficulty:       DefaultDifficulty,
		MiningDifficulty: DefaultMiningDifficulty,
	}
}

// =============================================================================

// Load opens and consumes the genesis file. A missing file is not an error,
// the defaults are returned. Fields left out of the file keep their default.
func Load(path string) (Genesis, error) {
	genesis := Default()

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return genesis, nil
		}
		return Genesis{}, err
	}

	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, fmt.Errorf("parsing genesis file %q: %w", path, err)
	}

	if genesis.Difficulty == 0 || genesis.MiningDifficulty == 0 {
		return Genesis{}, fmt.Errorf("genesis file %q: difficulty must be greater than zero", path)
	}

	return genesis, nil
}

// Block constructs the genesis block described by these settings.
func (g Genesis) Block() database.Block {
	return database.NewGenesisBlock(g.Difficulty)
}

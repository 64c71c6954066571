package public

import (
	"time"

	"github.com/ardanlabs/blocknode/foundation/blockchain/chain"
	"github.com/ardanlabs/blocknode/foundation/blockchain/database"
	"github.com/ethereum/go-ethereum/common"
)

type status struct {
	Tip              common.Hash `json:"tip"`
	Height           uint32      `json:"height"`
	WorkSum          uint64      `json:"work_sum"`
	Blocks           int         `json:"blocks"`
	Orphans          int         `json:"orphans"`
	StoredBlocks     uint32      `json:"stored_blocks"`
	MiningDifficulty uint32      `json:"mining_difficulty"`
	Peers            int         `json:"peers"`
	Listen           string      `json:"listen"`
}

type entry struct {
	Hash       common.Hash `json:"hash"`
	PrevHash   common.Hash `json:"prev_hash"`
	Number     uint32      `json:"number"`
	Difficulty uint32      `json:"difficulty"`
	WorkSum    uint64      `json:"work_sum"`
	StorageKey uint32      `json:"storage_key"`
}

func toEntry(e chain.Entry) entry {
	return entry{
		Hash:       e.Hash,
		PrevHash:   e.PrevHash,
		Number:     e.Number,
		Difficulty: e.Difficulty,
		WorkSum:    e.WorkSum,
		StorageKey: e.StorageKey,
	}
}

type block struct {
	database.BlockData
	WorkSum    uint64 `json:"work_sum"`
	StorageKey uint32 `json:"storage_key"`
	OnTipChain bool   `json:"on_tip_chain"`
}

type peerInfo struct {
	Addr      string    `json:"addr"`
	Inbound   bool      `json:"inbound"`
	Connected time.Time `json:"connected"`
}

// chainQuery is the query string accepted by the chain endpoint.
type chainQuery struct {
	Limit uint64 `json:"limit" validate:"min=1,max=1000"`
}

// NewPeer is what a client posts to ask the node to connect to a peer.
type NewPeer struct {
	Addr string `json:"addr" validate:"required,hostname_port"`
}

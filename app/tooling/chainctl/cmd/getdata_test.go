package cmd

import (
	"testing"
	"time"

	"github.com/ardanlabs/blocknode/foundation/blockchain/database/storage/memory"
	"github.com/ardanlabs/blocknode/foundation/blockchain/genesis"
	"github.com/ardanlabs/blocknode/foundation/blockchain/p2p"
	"github.com/ardanlabs/blocknode/foundation/blockchain/state"
	"github.com/ethereum/go-ethereum/common"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_FetchBlock(t *testing.T) {
	t.Log("Given the need to fetch a block over the peer protocol.")
	{
		st, err := state.New(state.Config{Storage: memory.New(), Genesis: genesis.Default()})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct the state: %v", failed, err)
		}

		n, err := p2p.New(p2p.Config{Host: "127.0.0.1", Chain: st})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct the node: %v", failed, err)
		}
		if err := n.Start(); err != nil {
			t.Fatalf("\t%s\tShould be able to start the node: %v", failed, err)
		}
		defer n.Shutdown()

		tip := st.RetrieveTip()

		block, err := fetchBlock(n.Addr(), tip.Hash, 5*time.Second)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to fetch the genesis block: %v", failed, err)
		}
		if block.Hash != tip.Hash || block.Header.Number != 0 {
			t.Fatalf("\t%s\tShould get the genesis block: %+v", failed, block)
		}
		t.Logf("\t%s\tShould get the genesis block.", success)

		if _, err := fetchBlock(n.Addr(), common.HexToHash("0x01"), 200*time.Millisecond); err == nil {
			t.Fatalf("\t%s\tShould fail for a block the node doesn't have.", failed)
		}
		t.Logf("\t%s\tShould fail for a block the node doesn't have.", success)
	}
}

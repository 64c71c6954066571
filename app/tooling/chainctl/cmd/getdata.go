package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/ardanlabs/blocknode/foundation/blockchain/database"
	"github.com/ardanlabs/blocknode/foundation/blockchain/p2p"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
)

var nodeAddr string

var getdataCmd = &cobra.Command{
	Use:   "getdata <hash>",
	Short: "Request a block over the peer protocol.",
	Args:  cobra.ExactArgs(1),
	Run:   getdataRun,
}

func init() {
	rootCmd.AddCommand(getdataCmd)
	getdataCmd.Flags().StringVarP(&nodeAddr, "node", "n", "127.0.0.1:7878", "Peer address of the node.")
}

func getdataRun(cmd *cobra.Command, args []string) {
	b, err := hexutil.Decode(args[0])
	if err != nil || len(b) != common.HashLength {
		log.Fatalf("invalid hash %q", args[0])
	}

	block, err := fetchBlock(nodeAddr, common.BytesToHash(b), timeout)
	if err != nil {
		log.Fatal(err)
	}

	if err := printJSON(database.NewBlockData(block)); err != nil {
		log.Fatal(err)
	}
}

// fetchBlock connects to the node as a peer, asks for the block and waits
// for the BLOCK reply. Any other traffic from the node is skipped. The node
// ignores a request for a block it doesn't have, so that ends in a timeout.
func fetchBlock(addr string, hash common.Hash, timeout time.Duration) (database.Block, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return database.Block{}, err
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(timeout))

	if _, err := conn.Write(p2p.NewConnect().Format()); err != nil {
		return database.Block{}, err
	}
	if _, err := conn.Write(p2p.NewGetData(hash).Format()); err != nil {
		return database.Block{}, err
	}

	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return database.Block{}, fmt.Errorf("block %s not served by %s", hash, addr)
			}
			return database.Block{}, err
		}

		msg, err := p2p.ParseMessage(line)
		if err != nil || msg.Command != p2p.CmdBlock {
			continue
		}

		block, err := p2p.DecodeBlock(msg.Payload)
		if err != nil {
			return database.Block{}, err
		}
		if block.Hash != hash {
			continue
		}

		return block, nil
	}
}

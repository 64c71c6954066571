package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

type peerInfo struct {
	Addr      string    `json:"addr"`
	Inbound   bool      `json:"inbound"`
	Connected time.Time `json:"connected"`
}

var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "Print the node's connected peers.",
	Run:   peersRun,
}

var connectCmd = &cobra.Command{
	Use:   "connect <host:port>",
	Short: "Ask the node to connect to a peer.",
	Args:  cobra.ExactArgs(1),
	Run:   connectRun,
}

func init() {
	rootCmd.AddCommand(peersCmd)
	peersCmd.AddCommand(connectCmd)
}

func peersRun(cmd *cobra.Command, args []string) {
	var peers []peerInfo
	if err := call(http.MethodGet, "/v1/peers", nil, &peers); err != nil {
		log.Fatal(err)
	}

	for _, p := range peers {
		dir := "outbound"
		if p.Inbound {
			dir = "inbound"
		}
		fmt.Printf("%-22s %-8s since %s\n", p.Addr, dir, p.Connected.Format(time.RFC3339))
	}
}

func connectRun(cmd *cobra.Command, args []string) {
	body, err := json.Marshal(struct {
		Addr string `json:"addr"`
	}{
		Addr: args[0],
	})
	if err != nil {
		log.Fatal(err)
	}

	var resp struct {
		Status string `json:"status"`
	}
	if err := call(http.MethodPost, "/v1/peers", bytes.NewReader(body), &resp); err != nil {
		log.Fatal(err)
	}

	fmt.Println(resp.Status)
}

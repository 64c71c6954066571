package cmd

import (
	"fmt"
	"log"
	"net/http"

	"github.com/spf13/cobra"
)

var limit uint

type entry struct {
	Hash       string `json:"hash"`
	Number     uint32 `json:"number"`
	Difficulty uint32 `json:"difficulty"`
	WorkSum    uint64 `json:"work_sum"`
}

var chainCmd = &cobra.Command{
	Use:   "chain",
	Short: "Print the chain from the tip back toward genesis.",
	Run:   chainRun,
}

func init() {
	rootCmd.AddCommand(chainCmd)
	chainCmd.Flags().UintVarP(&limit, "limit", "l", 20, "Number of blocks to print.")
}

func chainRun(cmd *cobra.Command, args []string) {
	var entries []entry
	if err := call(http.MethodGet, fmt.Sprintf("/v1/chain?limit=%d", limit), nil, &entries); err != nil {
		log.Fatal(err)
	}

	for _, e := range entries {
		fmt.Printf("%8d  %s  difficulty %-8d work %d\n", e.Number, e.Hash, e.Difficulty, e.WorkSum)
	}
}

package cmd

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/spf13/cobra"
)

var blockCmd = &cobra.Command{
	Use:   "block <hash>",
	Short: "Print an indexed block.",
	Args:  cobra.ExactArgs(1),
	Run:   blockRun,
}

func init() {
	rootCmd.AddCommand(blockCmd)
}

func blockRun(cmd *cobra.Command, args []string) {
	var block json.RawMessage
	if err := call(http.MethodGet, "/v1/blocks/"+args[0], nil, &block); err != nil {
		log.Fatal(err)
	}

	if err := printJSON(block); err != nil {
		log.Fatal(err)
	}
}

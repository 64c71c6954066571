package cmd

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the node's view of the chain.",
	Run:   statusRun,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func statusRun(cmd *cobra.Command, args []string) {
	var status json.RawMessage
	if err := call(http.MethodGet, "/v1/node/status", nil, &status); err != nil {
		log.Fatal(err)
	}

	if err := printJSON(status); err != nil {
		log.Fatal(err)
	}
}

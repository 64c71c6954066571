// Package cmd contains the chainctl app.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	url     string
	timeout time.Duration
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&url, "url", "u", "http://localhost:8878", "Url of the node's public api.")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 10*time.Second, "Timeout for a request to the node.")
}

var rootCmd = &cobra.Command{
	Use:   "chainctl",
	Short: "Query a blockchain node",
}

// Execute runs the command selected on the command line.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// apiError is the body the node returns for a failed request.
type apiError struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// call performs the request against the node's api and decodes the response
// into v.
func call(method string, path string, body io.Reader, v any) error {
	req, err := http.NewRequest(method, strings.TrimRight(url, "/")+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var ae apiError
		if err := json.NewDecoder(resp.Body).Decode(&ae); err != nil {
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		if len(ae.Fields) > 0 {
			return fmt.Errorf("status %d: %s: %v", resp.StatusCode, ae.Error, ae.Fields)
		}
		return fmt.Errorf("status %d: %s", resp.StatusCode, ae.Error)
	}

	return json.NewDecoder(resp.Body).Decode(v)
}

// printJSON writes the value as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// This program queries a running node over its HTTP API or the raw peer
// protocol.
package main

import "github.com/ardanlabs/blocknode/app/tooling/chainctl/cmd"

func main() {
	cmd.Execute()
}

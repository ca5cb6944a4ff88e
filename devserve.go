// Serve WebAssembly test builds over HTTP for local development
package main

import (
	"github.com/aaronboult/rust-simulation-engine/cmd"
	_ "github.com/aaronboult/rust-simulation-engine/cmd/serve"
	_ "github.com/aaronboult/rust-simulation-engine/cmd/version"
)

func main() {
	cmd.Main()
}

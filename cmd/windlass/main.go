package main

import (
	"os"

	"github.com/windlass-io/windlass/cmd/windlass/commands"
)

func main() {
	os.Exit(commands.Execute())
}

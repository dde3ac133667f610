// Command chain runs ad hoc queries through chain materializers.
package main

import (
	"os"

	"github.com/vinovest/chain/cmd/chain/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		commands.PrintError("%v", err)
		os.Exit(1)
	}
}

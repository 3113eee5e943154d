package main

import (
	"os"

	"github.com/ashmay29/NL2SQL/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

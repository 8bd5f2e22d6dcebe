package main

import (
	"os"

	. "github.com/alexdcox/cardano-minter"
)

var log = Log()

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Msgf("%+v", err)
		os.Exit(1)
	}
}

package main

import (
	"os"

	"github.com/charmbracelet/log"

	"github.com/CiscoSE/MaxmindAsnImporter/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

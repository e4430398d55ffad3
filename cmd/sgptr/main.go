package main

import (
	"os"

	"github.com/dshills/sgptr/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}

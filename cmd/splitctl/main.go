package main

import (
	"fmt"
	"os"

	"github.com/tbourn/go-billsplit/internal/cli"
	"github.com/tbourn/go-billsplit/internal/config"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"log"

	"github.com/chfs/chfs/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		log.Fatal(err)
	}
}

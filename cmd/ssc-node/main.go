package main

import (
	"fmt"
	"os"

	"github.com/drand/ssc/internal/node-cli"
)

func main() {
	app := node.CLI()
	if err := app.Run(os.Args); err != nil {
		fmt.Printf("%+v\n", err)
		os.Exit(1)
	}
}

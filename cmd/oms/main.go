package main

import (
	"github.com/rustyeddy/oms/internal/cli"
)

func main() {
	cli.Execute()
}

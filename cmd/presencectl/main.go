package main

import (
	"github.com/openrealms/presenced/internal/cli"
)

func main() {
	cli.Execute()
}

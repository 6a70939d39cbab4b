package main

import "github.com/heimdex/heimdex-shorts/internal/cli"

func main() {
	cli.Execute()
}

package main

import "celo-ledger/internal/cli"

func main() {
	cli.Execute()
}

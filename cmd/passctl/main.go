package main

import "github.com/studentid/walletpass/internal/cli"

func main() {
	cli.Execute()
}

package main

import "options-backtester/internal/cli"

func main() {
	cli.Execute()
}

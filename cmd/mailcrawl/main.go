package main

import "mailcrawl/internal/cli"

func main() {
	cli.Execute()
}

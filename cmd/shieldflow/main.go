package main

import "shieldflow/internal/cli"

func main() {
	cli.Execute()
}

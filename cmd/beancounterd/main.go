package main

import "github.com/umpyre/beancounterd/internal/cli"

func main() {
	cli.Execute()
}

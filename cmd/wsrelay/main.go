package main

import "github.com/koding/wsrelay/internal/cli"

func main() {
	cli.Execute()
}

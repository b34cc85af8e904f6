package main

import "github.com/vietddude/triage/internal/cli"

func main() {
	cli.Execute()
}

package main

import "github.com/llm-gate/llm-gate/internal/cli"

func main() {
	cli.Execute()
}

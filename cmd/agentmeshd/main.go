package main

import "github.com/agentmesh/agentmesh/internal/cli"

func main() {
	cli.Execute()
}

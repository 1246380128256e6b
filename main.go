package main

import "github.com/jmehdipour/campaign-orchestrator/cmd"

func main() {
	cmd.Execute()
}

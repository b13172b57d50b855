package main

import "github.com/OpenTraceLab/OpenTracePulse/cmd/pbgen/cmd"

func main() {
	cmd.Execute()
}

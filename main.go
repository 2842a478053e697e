package main

import "github.com/trailtools/rde/cmd"

func main() {
	cmd.Execute()
}

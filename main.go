package main

import "github.com/openreach/browserpilot/cmd"

func main() {
	cmd.Execute()
}

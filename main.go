package main

import "github.com/relloyd/stagesync/cmd"

func main() {
	cmd.Execute()
}

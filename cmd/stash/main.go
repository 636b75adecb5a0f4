package main

import "github.com/aweris/stash/cmd/stash/cmd"

func main() {
	cmd.Execute()
}

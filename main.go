package main

import "github.com/kiesman99/demtile/cmd"

func main() {
	cmd.Execute()
}

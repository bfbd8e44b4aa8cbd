package main

import "github.com/Flammable-Bunny/Lingle/cmd"

func main() {
	cmd.Execute()
}

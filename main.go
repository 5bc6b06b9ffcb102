package main

import "github.com/valpere/tile_merge/cmd"

func main() {
	cmd.Execute()
}

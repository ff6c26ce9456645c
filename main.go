package main

import "github.com/leeineian/jill/cmd"

func main() {
	cmd.Execute()
}

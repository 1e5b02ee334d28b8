package main

import "typecmux-go/cmd/typecmux/cmd"

func main() {
	cmd.Execute()
}

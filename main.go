package main

import "refcast/cmd"

func main() {
	cmd.Execute()
}

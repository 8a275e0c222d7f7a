package main

import "github.com/chatfiles/docpipe/cmd"

func main() {
	cmd.Execute()
}

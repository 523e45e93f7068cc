package main

import "github.com/echoboard/echoboard/internal/cli/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/hsterling/chronoview/cmd/chronoview/cmd"

func main() {
	cmd.Execute()
}

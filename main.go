package main

import "github.com/crossval/crossval/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/nextlevelbuilder/seaturtle/cmd"

func main() {
	cmd.Execute()
}

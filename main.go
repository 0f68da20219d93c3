package main

import "github.com/nextlevelbuilder/chatmover/cmd"

func main() {
	cmd.Execute()
}

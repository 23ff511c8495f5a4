package main

import "CreativeStudio-server/cmd"

func main() {
	cmd.Execute()
}

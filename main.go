package main

import "store-migrator/cmd"

func main() {
	cmd.Execute()
}

package main

import "phototrail/cmd"

func main() {
	cmd.Execute()
}

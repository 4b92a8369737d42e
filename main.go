package main

import "smspanel/panel/cmd"

func main() {
	cmd.Run()
}

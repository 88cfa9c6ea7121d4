package main

import "seatalloc/cmd"

func main() {
	cmd.Execute()
}

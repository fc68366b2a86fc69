package main

import "neonmatch-backend/cmd"

func main() {
	cmd.Run()
}

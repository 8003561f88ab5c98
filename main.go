package main

import "msp-console/cmd"

func main() {
	cmd.Execute()
}

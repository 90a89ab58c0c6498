package main

import "caseindex/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/devopsext/weightapi/cmd"

func main() {
	cmd.Execute()
}

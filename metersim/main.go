// Package main is the entry point of the metersim command.
package main

import "github.com/sarchlab/metersim/metersim/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/hpc-analysis/cmd/hpc-analysis/cmd"

func main() {
	cmd.Execute()
}

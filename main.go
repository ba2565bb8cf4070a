package main

import (
	"github.com/xkilldash9x/searchprobe/cmd"
)

func main() {
	cmd.Execute()
}

package main

import (
	"fmt"
	"os"
)

func main() {
	a := newApp()
	err := newRootCommand(a).Execute()
	a.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

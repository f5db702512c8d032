package main

import (
	"fmt"
	"os"

	"github.com/soyeahso/tripwatch/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "tripwatch:", err)
		os.Exit(1)
	}
}

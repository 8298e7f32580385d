package main

import (
	"os"

	"odometer/internal/cli"

	_ "time/tzdata"
)

func main() {
	os.Exit(cli.Execute())
}

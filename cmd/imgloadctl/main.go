package main

import (
	"os"

	"imgload/internal/ctl"
)

func main() { os.Exit(ctl.Main()) }

package main

import (
	"os"

	"github.com/kismetwireless/kismet-datasource-core/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}

package main

import (
	"github.com/edgevid/shmcast/cmdmain"

	_ "github.com/edgevid/shmcast/subcmd"
)

func main() {
	cmdmain.Main()
}

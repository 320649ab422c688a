package main

import (
	"github.com/lightcast/lightcast/lightcast-golib/cmdline"
)

func main() {
	cmdline.MustDispatch(
		trainCmd,
		predictCmd,
	)
}

// Command portod is the container daemon binary. It also serves as its
// own re-exec target: when invoked with the launch helper's sentinel
// argument it runs the namespace/task launch helper instead of the normal
// daemon entrypoint, per pkg/launch's self-re-exec design.
package main

import (
	"os"

	"github.com/bowlofstew/porto/internal/cli"
	"github.com/bowlofstew/porto/pkg/launch"
)

func main() {
	if launch.IsHelperInvocation(os.Args) {
		launch.RunHelper()
		return
	}
	os.Exit(cli.Main())
}

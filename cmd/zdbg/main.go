package main

import (
	"os"

	"github.com/go-delve/zdbg/cmd/zdbg/cmds"
	"github.com/go-delve/zdbg/pkg/version"
)

// Build is the git sha of this binaries build.
var Build string

func main() {
	if Build != "" {
		version.ZdbgVersion.Build = Build
	}
	if err := cmds.New().Execute(); err != nil {
		os.Exit(1)
	}
}

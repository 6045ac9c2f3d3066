//go:build !windows

package main

import (
	"os"
	"syscall"
)

// shutdownSignals stop long-running commands (serve, mcp-server).
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

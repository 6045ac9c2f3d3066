//go:build windows

package main

import "os"

// shutdownSignals stop long-running commands. SIGTERM does not exist on Windows.
var shutdownSignals = []os.Signal{os.Interrupt}

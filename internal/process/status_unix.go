//go:build unix

package process

import (
	"os"
	"syscall"
)

// signalExitBase is added to the signal number of a killed child.
const signalExitBase = 128

// exitStatus returns the shell-style exit status of a finished child and
// the name of the signal that killed it, if any.
func exitStatus(ps *os.ProcessState) (int, string) {
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return signalExitBase + int(ws.Signal()), ws.Signal().String()
	}
	return ps.ExitCode(), ""
}

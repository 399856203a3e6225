//go:build !unix

package process

import "os/exec"

// setProcessGroup is a no-op where process groups are unavailable; the
// default cancellation (Process.Kill) applies to the child only.
func setProcessGroup(cmd *exec.Cmd) {}

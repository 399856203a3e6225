// Package process is the process-launch capability shared by every
// pipeline stage.
//
// Stages never call os/exec directly. They describe a child process as a
// Command and hand it to a Launcher, which starts it, streams its output to
// the supplied writers, and waits for it within the caller's context. The
// production Launcher (ExecLauncher) runs real processes; tests substitute
// processtest.FakeLauncher.
package process

// Package source implements the fetch stage: it turns a repository
// reference into a local project tree.
//
// All Git operations are performed by invoking the git binary through a
// process.Launcher rather than by using a Git library such as go-git.
// This keeps clone behaviour identical to what a grader sees in their own
// terminal, including credential helpers and SSH configuration.
//
// A fetch targets either a temporary directory owned by the run (reclaimed
// afterwards) or a permanent directory owned by the caller, laid out as
// <projects>/<owner>/<repo>.
package source

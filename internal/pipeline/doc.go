// Package pipeline wires the fetch, provision, run and reclaim stages into
// a single grading run.
//
// Stages run strictly in sequence and every stage failure is fatal. Each
// run-owned resource is scheduled for release the moment it exists, so the
// environment and any temporary project tree are deleted on every exit
// path: success, stage failure, or cancellation of the context.
package pipeline

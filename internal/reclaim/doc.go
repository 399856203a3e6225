// Package reclaim implements the release stage: it deletes the resources
// a run owns once the run is over.
//
// The virtual environment is always deleted. A project tree is deleted
// only when it was fetched into a temporary directory; permanently stored
// projects are never touched.
package reclaim

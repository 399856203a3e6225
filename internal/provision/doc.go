// Package provision implements the environment stage: it creates an
// isolated Python virtual environment for a fetched project and installs
// the project's dependency manifest into it.
//
// The virtual environment is created in its own temporary directory,
// never inside the project tree, so a permanently stored project is left
// exactly as it was fetched. The returned model.Environment is owned by
// the run and must be handed to the reclaim stage afterwards.
package provision

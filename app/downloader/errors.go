package downloader

import "errors"

var (
	// ErrAlreadyRunning is returned when a run is requested for a task or
	// account that already has an active run.
	ErrAlreadyRunning = errors.New("run already active")

	// ErrNotFound is returned when the requested task or account does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNoCredential is returned when no remote access credential is
	// configured. Nothing can be listed or downloaded without one.
	ErrNoCredential = errors.New("remote credential not configured")
)

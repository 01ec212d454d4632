package app

import "errors"

var (
	// ErrNoMaterials means nothing has been uploaded yet, or the stored
	// file identifiers no longer resolve at the backend.
	ErrNoMaterials = errors.New("no study materials found")

	// ErrNotFound covers missing operation and job ids.
	ErrNotFound = errors.New("not found")
)

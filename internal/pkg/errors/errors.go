package errors

import "errors"

var (
	// ErrCatalogMissing marks a reference to a catalog entity that does not exist.
	ErrCatalogMissing = errors.New("catalog entry not found")
	// ErrCatalogInconsistent marks a violated catalog invariant.
	ErrCatalogInconsistent = errors.New("catalog inconsistent")
	// ErrIntegrity wraps unique, foreign key and check constraint violations.
	ErrIntegrity = errors.New("catalog integrity violation")
	// ErrIngestReject marks a candidate file that could not be ingested.
	ErrIngestReject = errors.New("ingest rejected")
	// ErrBuildFailure marks a product-building child that exited non-zero.
	ErrBuildFailure = errors.New("build failed")
	// ErrLockHeld is returned when another driver holds the processing lock.
	ErrLockHeld = errors.New("processing lock held")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
)

package entity

import "errors"

var (
	// Link errors
	ErrLinkNotFound     = errors.New("link not found")
	ErrLinkExists       = errors.New("short code already exists")
	ErrInvalidShortCode = errors.New("invalid short code")
	ErrInvalidURL       = errors.New("invalid target URL")
	ErrNothingToUpdate  = errors.New("nothing to update")

	// Click errors
	ErrClickBeforeLink = errors.New("click timestamp precedes link creation")

	// Report errors
	ErrUnknownReportKind = errors.New("unknown report kind")
	ErrReportNotFound    = errors.New("report not found")
	ErrNoTransport       = errors.New("report transport is not configured")

	// Cache errors
	ErrCacheMiss = errors.New("cache miss")

	// General errors
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrInvalidInput       = errors.New("invalid input")
)

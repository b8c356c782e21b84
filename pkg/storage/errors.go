package storage

import "errors"

var (
	ErrInvalidRound   = errors.New("invalid round number")
	ErrReportNotFound = errors.New("round report not found")
)

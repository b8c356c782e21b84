package fl

import "errors"

var (
	ErrNoUpdates    = errors.New("no updates provided for aggregation")
	ErrInvalidTotal = errors.New("total sample count must be positive")
)

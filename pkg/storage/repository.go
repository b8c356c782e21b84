package storage

import (
	"context"

	"github.com/absmach/splitfed/pkg/fl"
)

type ReportRepository interface {
	Save(ctx context.Context, r fl.RoundReport) error
	Get(ctx context.Context, round int) (fl.RoundReport, error)
	// List returns reports ordered by round and the total count.
	List(ctx context.Context, offset, limit uint64) ([]fl.RoundReport, uint64, error)
}

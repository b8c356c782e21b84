package storage

import (
	"context"
	"errors"
	"fmt"

	pkgerrors "github.com/absmach/splitfed/pkg/errors"
	"github.com/absmach/splitfed/pkg/fl"
)

// ReportKey is the storage key of a round. It is zero padded so that key
// order matches round order.
func ReportKey(round int) string {
	return fmt.Sprintf("round:%08d", round)
}

type memoryReportRepo struct {
	storage Storage
}

func NewMemoryReportRepository(s Storage) ReportRepository {
	return &memoryReportRepo{storage: s}
}

func (r *memoryReportRepo) Save(ctx context.Context, report fl.RoundReport) error {
	if report.Round < 0 {
		return ErrInvalidRound
	}

	key := ReportKey(report.Round)
	err := r.storage.Create(ctx, key, report)
	if errors.Is(err, pkgerrors.ErrEntityExists) {
		return r.storage.Update(ctx, key, report)
	}

	return err
}

func (r *memoryReportRepo) Get(ctx context.Context, round int) (fl.RoundReport, error) {
	data, err := r.storage.Get(ctx, ReportKey(round))
	if err != nil {
		if errors.Is(err, pkgerrors.ErrNotFound) {
			return fl.RoundReport{}, ErrReportNotFound
		}

		return fl.RoundReport{}, err
	}
	report, ok := data.(fl.RoundReport)
	if !ok {
		return fl.RoundReport{}, pkgerrors.ErrInvalidData
	}

	return report, nil
}

func (r *memoryReportRepo) List(ctx context.Context, offset, limit uint64) ([]fl.RoundReport, uint64, error) {
	data, total, err := r.storage.List(ctx, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	reports := make([]fl.RoundReport, len(data))
	for i, d := range data {
		report, ok := d.(fl.RoundReport)
		if !ok {
			return nil, 0, pkgerrors.ErrInvalidData
		}
		reports[i] = report
	}

	return reports, total, nil
}

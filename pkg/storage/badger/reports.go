package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/absmach/splitfed/pkg/fl"
)

const reportPrefix = "round:"

var ErrInvalidRound = errors.New("invalid round number")

type ReportRepository struct {
	db *Database
}

func NewReportRepository(db *Database) *ReportRepository {
	return &ReportRepository{db: db}
}

func reportKey(round int) []byte {
	return fmt.Appendf(nil, "%s%08d", reportPrefix, round)
}

// Save creates or replaces the report of r.Round.
func (r *ReportRepository) Save(ctx context.Context, report fl.RoundReport) error {
	if report.Round < 0 {
		return ErrInvalidRound
	}

	val, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}
	if err := r.db.set(reportKey(report.Round), val); err != nil {
		return fmt.Errorf("%w: %w", ErrCreate, err)
	}

	return nil
}

func (r *ReportRepository) Get(ctx context.Context, round int) (fl.RoundReport, error) {
	val, err := r.db.get(reportKey(round))
	if err != nil {
		return fl.RoundReport{}, err
	}
	var report fl.RoundReport
	if err := json.Unmarshal(val, &report); err != nil {
		return fl.RoundReport{}, fmt.Errorf("unmarshal error: %w", err)
	}

	return report, nil
}

func (r *ReportRepository) List(ctx context.Context, offset, limit uint64) ([]fl.RoundReport, uint64, error) {
	values, total, err := r.db.listWithPrefix([]byte(reportPrefix), offset, limit)
	if err != nil {
		return nil, 0, err
	}
	reports := make([]fl.RoundReport, len(values))
	for i, val := range values {
		if err := json.Unmarshal(val, &reports[i]); err != nil {
			return nil, 0, fmt.Errorf("unmarshal error: %w", err)
		}
	}

	return reports, total, nil
}

func (r *ReportRepository) Delete(ctx context.Context, round int) error {
	return r.db.delete(reportKey(round))
}

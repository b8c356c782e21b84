package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/absmach/splitfed/pkg/fl"
	"github.com/absmach/splitfed/pkg/storage/badger"
)

type Config struct {
	Type       string `env:"STORAGE_TYPE"  envDefault:"memory"`
	BadgerPath string `env:"BADGER_PATH"   envDefault:"./data/badger"`
}

type Repositories struct {
	Reports ReportRepository
	// Closer closes the underlying persistent storage connection.
	// It is nil for the in-memory backend.
	Closer io.Closer
}

func NewRepositories(cfg Config) (*Repositories, error) {
	switch cfg.Type {
	case "badger":
		return newBadgerRepositories(cfg)
	case "memory", "":
		return newMemoryRepositories(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

func newBadgerRepositories(cfg Config) (*Repositories, error) {
	db, err := badger.NewDatabase(cfg.BadgerPath)
	if err != nil {
		return nil, err
	}

	return &Repositories{
		Reports: &badgerReportAdapter{repo: badger.NewReportRepository(db)},
		Closer:  db,
	}, nil
}

func newMemoryRepositories() *Repositories {
	return &Repositories{
		Reports: NewMemoryReportRepository(NewInMemoryStorage()),
	}
}

type badgerReportAdapter struct {
	repo *badger.ReportRepository
}

func (a *badgerReportAdapter) Save(ctx context.Context, r fl.RoundReport) error {
	if err := a.repo.Save(ctx, r); err != nil {
		if errors.Is(err, badger.ErrInvalidRound) {
			return ErrInvalidRound
		}

		return err
	}

	return nil
}

func (a *badgerReportAdapter) Get(ctx context.Context, round int) (fl.RoundReport, error) {
	r, err := a.repo.Get(ctx, round)
	if errors.Is(err, badger.ErrNotFound) {
		return fl.RoundReport{}, ErrReportNotFound
	}

	return r, err
}

func (a *badgerReportAdapter) List(ctx context.Context, offset, limit uint64) ([]fl.RoundReport, uint64, error) {
	return a.repo.List(ctx, offset, limit)
}

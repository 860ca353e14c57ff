package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-complaints-api/pkg/sequence"
)

// SequenceRepository hands out per-year complaint numbers from a single atomic upsert.
type SequenceRepository struct {
	db *sqlx.DB
}

// NewSequenceRepository constructs the repository.
func NewSequenceRepository(db *sqlx.DB) *SequenceRepository {
	return &SequenceRepository{db: db}
}

var _ sequence.Counter = (*SequenceRepository)(nil)

// NextValue increments and returns the counter for year. The first value of a year is sequence.Start+1.
func (r *SequenceRepository) NextValue(ctx context.Context, year int) (int64, error) {
	const query = `INSERT INTO complaint_sequences (year, value) VALUES ($1, $2)
ON CONFLICT (year) DO UPDATE SET value = complaint_sequences.value + 1
RETURNING value`
	var value int64
	if err := r.db.QueryRowxContext(ctx, query, year, sequence.Start+1).Scan(&value); err != nil {
		return 0, fmt.Errorf("next complaint sequence: %w", err)
	}
	return value, nil
}

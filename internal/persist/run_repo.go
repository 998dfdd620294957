package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunRow is one finished search call.
type RunRow struct {
	ID          uuid.UUID
	Strategy    string
	Race        string
	Goal        map[string]int
	BuildOrder  []string
	FinishFrame int
	Value       float64
	Nodes       int64
	Elapsed     time.Duration
	TimedOut    bool
	Solved      bool
	CreatedAt   time.Time
}

type RunRepo struct {
	db *DB
}

func NewRunRepo(db *DB) *RunRepo {
	return &RunRepo{db: db}
}

// Save inserts row, assigning an id and creation time when they are unset.
func (r *RunRepo) Save(ctx context.Context, row *RunRow) error {
	return saveRun(ctx, r.db.Pool, row)
}

func saveRun(ctx context.Context, q execer, row *RunRow) error {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}
	goal := row.Goal
	if goal == nil {
		goal = map[string]int{}
	}
	buildOrder := row.BuildOrder
	if buildOrder == nil {
		buildOrder = []string{}
	}
	_, err := q.Exec(ctx,
		`INSERT INTO search_runs (id, strategy, race, goal, build_order, finish_frame, value,
		                          nodes_expanded, elapsed_ms, timed_out, solved, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		row.ID, row.Strategy, row.Race, goal, buildOrder, row.FinishFrame, row.Value,
		row.Nodes, row.Elapsed.Milliseconds(), row.TimedOut, row.Solved, row.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert search run: %w", err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (r *RunRepo) Recent(ctx context.Context, limit int) ([]RunRow, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, strategy, race, goal, build_order, finish_frame, value,
		        nodes_expanded, elapsed_ms, timed_out, solved, created_at
		 FROM search_runs ORDER BY created_at DESC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query search runs: %w", err)
	}
	defer rows.Close()

	var result []RunRow
	for rows.Next() {
		var row RunRow
		var elapsedMS int64
		if err := rows.Scan(
			&row.ID, &row.Strategy, &row.Race, &row.Goal, &row.BuildOrder, &row.FinishFrame, &row.Value,
			&row.Nodes, &elapsedMS, &row.TimedOut, &row.Solved, &row.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan search run: %w", err)
		}
		row.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		result = append(result, row)
	}
	return result, rows.Err()
}

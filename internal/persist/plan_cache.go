package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// CachedPlan is the best known build order for a plan key.
type CachedPlan struct {
	Key         []byte
	BuildOrder  []string
	FinishFrame int
	Solved      bool // the search that produced it ran to completion
	UpdatedAt   time.Time
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PlanCache struct {
	db *DB
}

func NewPlanCache(db *DB) *PlanCache {
	return &PlanCache{db: db}
}

// Get returns the cached plan for key, or nil when there is none.
func (c *PlanCache) Get(ctx context.Context, key []byte) (*CachedPlan, error) {
	p := &CachedPlan{Key: key}
	err := c.db.Pool.QueryRow(ctx,
		`SELECT build_order, finish_frame, solved, updated_at FROM plan_cache WHERE key = $1`, key,
	).Scan(&p.BuildOrder, &p.FinishFrame, &p.Solved, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cached plan: %w", err)
	}
	return p, nil
}

// Put stores p unless a plan finishing strictly earlier is already cached.
// It reports whether the row was written.
func (c *PlanCache) Put(ctx context.Context, p *CachedPlan) (bool, error) {
	return putPlan(ctx, c.db.Pool, p)
}

func putPlan(ctx context.Context, q execer, p *CachedPlan) (bool, error) {
	tag, err := q.Exec(ctx,
		`INSERT INTO plan_cache (key, build_order, finish_frame, solved, updated_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (key) DO UPDATE SET
		     build_order  = EXCLUDED.build_order,
		     finish_frame = EXCLUDED.finish_frame,
		     solved       = plan_cache.solved OR EXCLUDED.solved,
		     updated_at   = NOW()
		 WHERE EXCLUDED.finish_frame < plan_cache.finish_frame
		    OR (EXCLUDED.finish_frame = plan_cache.finish_frame AND EXCLUDED.solved AND NOT plan_cache.solved)`,
		p.Key, p.BuildOrder, p.FinishFrame, p.Solved,
	)
	if err != nil {
		return false, fmt.Errorf("upsert cached plan: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

package persist

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Record saves a run and, when it carries a plan and key is set, offers the
// plan to the cache, in one transaction.
func Record(ctx context.Context, db *DB, run *RunRow, key []byte) error {
	err := db.InTx(ctx, func(tx pgx.Tx) error {
		if err := saveRun(ctx, tx, run); err != nil {
			return err
		}
		if key == nil || len(run.BuildOrder) == 0 {
			return nil
		}
		written, err := putPlan(ctx, tx, &CachedPlan{
			Key:         key,
			BuildOrder:  run.BuildOrder,
			FinishFrame: run.FinishFrame,
			Solved:      run.Solved,
		})
		if err != nil {
			return err
		}
		db.log.Debug("plan cache offer",
			zap.Bool("written", written),
			zap.Int("finish_frame", run.FinishFrame),
		)
		return nil
	})
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}
